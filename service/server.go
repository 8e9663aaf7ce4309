//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/hiplab/gcservice/engine"
	"github.com/hiplab/gcservice/env"
	"github.com/hiplab/gcservice/field"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server implements the input/output listener. It services one
// connection at a time.
type Server struct {
	config    *env.Config
	evaluator *engine.Evaluator
	corrector *field.Corrector
	log       *zap.Logger
	ln        net.Listener

	m       sync.Mutex
	current net.Conn
}

// NewServer creates a server for the prepared evaluator. The server
// role field corrects all results; the client role returns the
// evaluator's shares unmodified. NewServer returns
// engine.ErrNotPrepared if the offline phase has not completed.
func NewServer(config *env.Config, evaluator *engine.Evaluator) (
	*Server, error) {

	if !evaluator.Prepared() {
		return nil, engine.ErrNotPrepared
	}
	srv := &Server{
		config:    config,
		evaluator: evaluator,
		log:       config.GetLogger().Named("server"),
	}
	switch config.Role {
	case env.Server:
		corrector, err := field.NewCorrector(config.NBits)
		if err != nil {
			return nil, err
		}
		srv.corrector = corrector

	case env.Client:
		if evaluator.Arity() != 2 {
			return nil, fmt.Errorf("client role requires 2 shares, got %d",
				evaluator.Arity())
		}
	}
	return srv, nil
}

// Listen binds the input/output port.
func (srv *Server) Listen() error {
	return srv.ListenAddr(srv.config.InputAddr())
}

// ListenAddr binds the listener to addr.
func (srv *Server) ListenAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv.ln = ln
	srv.log.Info("listening", zap.Stringer("addr", ln.Addr()),
		zap.Stringer("mode", srv.config.Mode),
		zap.Stringer("role", srv.config.Role))
	return nil
}

// Addr returns the listener address.
func (srv *Server) Addr() net.Addr {
	return srv.ln.Addr()
}

// Serve accepts connections until the service ends. In the persistent
// mode, the service ends when its single connection ends: Serve
// returns nil at the end of input and the session's *Error if the
// session failed. In the per-request mode, Serve runs until the
// context is done and returns nil. Failed sessions are logged and do
// not stop the listener.
func (srv *Server) Serve(ctx context.Context) error {
	if srv.ln == nil {
		return errors.New("server not listening")
	}
	ctx, cancel := context.WithCancel(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		if srv.config.Mode == env.Persistent {
			return srv.servePersistent(ctx)
		}
		return srv.servePerRequest(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		srv.ln.Close()

		srv.m.Lock()
		if srv.current != nil {
			srv.current.Close()
		}
		srv.m.Unlock()
		return nil
	})
	return g.Wait()
}

func (srv *Server) accept(ctx context.Context) (net.Conn, error) {
	nc, err := srv.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	srv.m.Lock()
	srv.current = nc
	srv.m.Unlock()

	if ctx.Err() != nil {
		nc.Close()
		return nil, ctx.Err()
	}
	srv.log.Info("new connection", zap.Stringer("remote", nc.RemoteAddr()))
	return nc, nil
}

func (srv *Server) release(session *Session) {
	srv.m.Lock()
	srv.current = nil
	srv.m.Unlock()

	if err := session.Close(); err != nil {
		srv.log.Debug("close session", zap.Error(err),
			zap.String("session", session.ID.String()))
	}
}

func (srv *Server) servePersistent(ctx context.Context) error {
	nc, err := srv.accept(ctx)
	srv.ln.Close()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	session := NewSession(srv.config, srv.evaluator, srv.corrector, nc)
	defer srv.release(session)

	err = session.Serve(ctx)
	if IsEndOfInput(err) {
		srv.log.Info("no more inputs",
			zap.String("session", session.ID.String()),
			zap.Int("requests", session.Requests))
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	srv.log.Error("session failed", zap.Error(err),
		zap.String("session", session.ID.String()))
	return err
}

func (srv *Server) servePerRequest(ctx context.Context) error {
	for {
		nc, err := srv.accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		session := NewSession(srv.config, srv.evaluator, srv.corrector, nc)

		err = session.ServeOne(ctx)
		if err != nil && ctx.Err() == nil {
			if IsEndOfInput(err) {
				srv.log.Info("empty connection",
					zap.String("session", session.ID.String()))
			} else {
				srv.log.Warn("session dropped", zap.Error(err),
					zap.String("session", session.ID.String()))
			}
		}
		srv.release(session)
	}
}
