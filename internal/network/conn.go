package network

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"primetime/internal/logger"
	"primetime/internal/types"
	"time"
)

// handleConnection serves one client: read a line, answer it, repeat. The
// next line is not read until the previous answer has been flushed. A
// protocol violation gets one error line and then the connection is closed;
// a transport error closes it without a reply.
func (s *Server) handleConnection(conn net.Conn) {
	remote := conn.RemoteAddr()
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	s.Metrics.ConnOpened()
	defer s.Metrics.ConnClosed()
	logger.Debug("Connection opened from %v", remote)

	scanner := bufio.NewScanner(conn)
	// The scanner limit counts the newline and is the larger of max and the
	// initial capacity.
	limit := s.MaxLineBytes + 1
	scanner.Buffer(make([]byte, 0, min(4096, limit)), limit)
	writer := bufio.NewWriter(conn)

	for {
		if s.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		}

		if !scanner.Scan() {
			err := scanner.Err()
			switch {
			case err == nil:
				logger.Debug("Connection from %v closed by peer", remote)
			case errors.Is(err, bufio.ErrTooLong):
				s.reject(conn, writer, violation("request line exceeds %d bytes", s.MaxLineBytes))
			case s.ctx.Err() != nil:
				logger.Debug("Connection from %v closed for shutdown", remote)
			default:
				logger.Error("Read from %v: %v", remote, err)
			}
			return
		}

		resp, err := s.answer(scanner.Bytes())
		if err != nil {
			var perr *protocolError
			if errors.As(err, &perr) {
				s.reject(conn, writer, perr)
			} else if s.ctx.Err() == nil {
				logger.Error("Request from %v: %v", remote, err)
			}
			return
		}

		if err := writeLine(writer, resp); err != nil {
			logger.Error("Write to %v: %v", remote, err)
			return
		}
	}
}

// answer turns one request line into a response, consulting the compute pool
// only for integral numbers.
func (s *Server) answer(line []byte) (types.Response, error) {
	req, err := decodeRequest(line)
	if err != nil {
		return types.Response{}, err
	}

	resp := types.Response{Method: req.Method}
	if !isInteger(req.Number) {
		s.Metrics.Answered(false, false)
		return resp, nil
	}

	prime, err := s.Pool.Submit(s.ctx, toInt64(req.Number))
	if err != nil {
		return types.Response{}, err
	}
	resp.Prime = prime
	s.Metrics.Answered(prime, true)
	return resp, nil
}

func (s *Server) reject(conn net.Conn, w *bufio.Writer, err error) {
	s.Metrics.Violation()
	logger.Debug("Protocol violation from %v: %v", conn.RemoteAddr(), err)
	if werr := writeLine(w, types.ErrorResponse{Error: err.Error()}); werr != nil {
		logger.Error("Write error response to %v: %v", conn.RemoteAddr(), werr)
		return
	}
	drain(conn)
}

const (
	drainTimeout = 2 * time.Second
	drainLimit   = 1 << 20
)

// drain half-closes conn and discards input the peer already sent, so that
// closing with unread bytes does not reset the connection before the error
// line is delivered.
func drain(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcpConn.CloseWrite(); err != nil {
		return
	}
	tcpConn.SetReadDeadline(time.Now().Add(drainTimeout))
	io.Copy(io.Discard, io.LimitReader(tcpConn, drainLimit))
}

// writeLine writes v as one JSON line and flushes it completely.
func writeLine(w *bufio.Writer, v interface{}) error {
	data, err := encodeLine(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Flush()
}
