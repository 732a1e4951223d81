// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"code.hybscloud.com/ofchannel/branch"
	"code.hybscloud.com/ofchannel/channel"
	"code.hybscloud.com/ofchannel/metrics"
	"code.hybscloud.com/ofchannel/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "listen for switch connections and dispatch OpenFlow channels",
	RunE:  runServe,
}

// runnableServer is the subset of *server.StreamServer and
// *server.DgramChannelServer runServe needs: both track every live
// Channel and tear them all down together on Stop.
type runnableServer interface {
	Start()
	Stop() error
	Addr() net.Addr
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	configureLogging(cfg.Log)

	collector := metrics.NewCollector(nil)
	if err := prometheus.Register(collector); err != nil {
		return err
	}

	factory := func(conn net.Conn) (server.Channel, error) {
		xport := metrics.Instrument(conn)
		chCfg := channel.Config{
			Accepted:   versionsToAccepted(cfg.Versions),
			AsyncBatch: cfg.AsyncRate,
			Datagram:   cfg.Transport == "udp",
		}
		pc := branch.NewParent(xport, branch.Config{
			Jackin:    cfg.Jackin,
			Monitor:   cfg.Monitor,
			SocketDir: cfg.SocketDir,
		}, chCfg)
		collector.Add(pc.Channel, xport)
		return pc, nil
	}

	var srv runnableServer
	if cfg.Transport == "udp" {
		srv, err = server.ListenDgramChannels(cfg.Transport, cfg.Listen, factory)
	} else {
		srv, err = server.ListenStream(cfg.Transport, cfg.Listen, factory)
	}
	if err != nil {
		return err
	}
	logrus.Infof("ofchanneld: listening on %s/%s", cfg.Transport, srv.Addr())
	srv.Start()

	var metricsSrv *http.Server
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			logrus.Infof("ofchanneld: metrics listening on %s", cfg.Metrics.Listen)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("ofchanneld: metrics server: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logrus.Infof("ofchanneld: shutting down")
	srv.Stop()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func configureLogging(cfg LogConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logrus.SetLevel(level)
	}
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
