package ofp

// BuildBarrierRequest builds a BARRIER_REQUEST for version: a bare
// header, no body (spec §4.4).
func BuildBarrierRequest(version uint8, xid uint32) []byte {
	return HeaderOnly(version, BarrierRequestType(version), xid)
}
