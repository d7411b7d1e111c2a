// Axirelay
// Copyright (c) 2026 The Axirelay Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Axirelay.
//
// Axirelay is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Axirelay is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Axirelay.  If not, see <http://www.gnu.org/licenses/>.

// Package api exposes the relay over HTTP and websocket. It is the only
// network-facing surface; everything it does goes through relay.Relay, never
// directly to the serial device.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/axirelay/axirelay/pkg/config"
	"github.com/axirelay/axirelay/pkg/relay"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

type submitRequest struct {
	Command string `json:"command"`
}

type submitResult struct {
	Error string `json:"error,omitempty"`
	OK    bool   `json:"ok"`
}

type stateResponse struct {
	RunState    string `json:"runState"`
	QueueLength int    `json:"queueLength"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("error writing json response")
	}
}

func handleSubmit(rly *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, submitResult{Error: "invalid request body"})
			return
		}

		if err := rly.Submit(req.Command); err != nil {
			if errors.Is(err, relay.ErrInvalidCommand) {
				writeJSON(w, http.StatusBadRequest, submitResult{Error: err.Error()})
				return
			}
			writeJSON(w, http.StatusInternalServerError, submitResult{Error: err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, submitResult{OK: true})
	}
}

func handleState(rly *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		length, state := rly.Status()
		writeJSON(w, http.StatusOK, stateResponse{
			QueueLength: length,
			RunState:    state.String(),
		})
	}
}

func handleWSMessage(rly *relay.Relay) func(session *melody.Session, msg []byte) {
	return func(session *melody.Session, msg []byte) {
		// ping command for heartbeat operation
		if bytes.Equal(msg, []byte("ping")) {
			if err := session.Write([]byte("pong")); err != nil {
				log.Error().Err(err).Msg("sending pong")
			}
			return
		}

		// each websocket message is one command
		result := submitResult{OK: true}
		if err := rly.Submit(string(msg)); err != nil {
			result = submitResult{Error: err.Error()}
		}

		data, err := json.Marshal(result)
		if err != nil {
			log.Error().Err(err).Msg("marshalling ws result")
			return
		}

		if err := session.Write(data); err != nil {
			log.Error().Err(err).Msg("error writing ws result")
		}
	}
}

// NewRouter builds the HTTP routes over the given relay. Split out from
// Start so tests can drive the router with httptest.
func NewRouter(rly *relay.Relay) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{},
	}))

	session := melody.New()
	session.Upgrader.CheckOrigin = func(_ *http.Request) bool { return true }
	session.HandleMessage(handleWSMessage(rly))

	r.Post("/api/commands", handleSubmit(rly))
	r.Post("/api/pause", func(w http.ResponseWriter, _ *http.Request) {
		rly.Pause()
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/api/resume", func(w http.ResponseWriter, _ *http.Request) {
		rly.Resume()
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/api/clear", func(w http.ResponseWriter, _ *http.Request) {
		rly.Clear()
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/state", handleState(rly))
	r.Get("/api/ws", func(w http.ResponseWriter, req *http.Request) {
		if err := session.HandleRequest(w, req); err != nil {
			log.Error().Err(err).Msg("handling websocket request")
		}
	})

	return r
}

// Start serves the API until ctx is cancelled, then shuts down gracefully:
// new requests stop being accepted while in-flight handlers finish.
func Start(ctx context.Context, cfg *config.Instance, rly *relay.Relay) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.APIPort()),
		Handler:           NewRouter(rly),
		ReadHeaderTimeout: requestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.APIPort()).Msg("starting http server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown")
		}
		return nil
	}
}
