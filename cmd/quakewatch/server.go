// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/seismonet/quakewatch/internal/httpapi"
	"github.com/seismonet/quakewatch/pkg/log"
	"github.com/seismonet/quakewatch/pkg/runtimeEnv"
	"github.com/seismonet/quakewatch/pkg/schema"
)

var server *http.Server

// serverStart binds the listener before dropping privileges, exactly
// as the teacher does for its own privileged-port bind, then serves
// the httpapi router in a background goroutine.
func serverStart(cfg schema.ProgramConfig, api *httpapi.API, exitBindFailure int) {
	server = &http.Server{
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		Handler:      api.NewRouter(),
		Addr:         cfg.Addr,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Errorf("starting http listener failed: %s", err)
		os.Exit(exitBindFailure)
	}

	if cfg.HttpsCertFile != "" && cfg.HttpsKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.HttpsCertFile, cfg.HttpsKeyFile)
		if err != nil {
			log.Errorf("loading X509 keypair failed: %s", err)
			os.Exit(exitBindFailure)
		}
		listener = tls.NewListener(listener, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		fmt.Printf("HTTPS server listening at %s...\n", cfg.Addr)
	} else {
		fmt.Printf("HTTP server listening at %s...\n", cfg.Addr)
	}

	// The listener is bound to a possibly privileged port first, then
	// the process drops to the configured unprivileged user/group, and
	// only then does it start accepting connections.
	if err := runtimeEnv.DropPrivileges(cfg.User, cfg.Group); err != nil {
		log.Errorf("error while preparing server start: %s", err)
		os.Exit(exitBindFailure)
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Errorf("serving http: %s", err)
		}
	}()
}

func serverShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("http server shutdown: %s", err)
	}
}
