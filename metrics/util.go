// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metrics

import "fmt"

func formatDatapath(id uint64) string {
	return fmt.Sprintf("%016x", id)
}
