package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"contractScope/internal/ledger"
	"contractScope/internal/metrics"
	"contractScope/internal/model"
	"contractScope/internal/wsconn"
)

type sessionState string

const (
	stateConnecting    sessionState = "connecting"
	stateHandshakeSent sessionState = "handshake_sent"
	stateSubscribed    sessionState = "subscribed"
	stateStreaming     sessionState = "streaming"
	stateTerminated    sessionState = "terminated"
)

// ending records why the streaming loop stopped.
type ending struct {
	reason model.TerminationReason
	err    error
}

func endWith(reason model.TerminationReason, err error) *ending {
	return &ending{reason: reason, err: err}
}

type session struct {
	id     string
	cfg    Config
	framed string
	out    chan<- model.Event
	logger *zap.Logger

	conn     *wsconn.Conn
	deadline time.Time
	ticks    int
	lastLeft time.Duration
}

func (s *session) run(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.Timeout)
	defer cancel()
	s.deadline, _ = ctx.Deadline()

	done := metrics.SessionStarted(s.cfg.Network.String())
	s.logger.Info("session start", zap.Duration("timeout", s.cfg.Timeout), zap.String("indexer_ws", s.cfg.IndexerWS))

	reason, err := s.execute(ctx, parent)

	if s.conn != nil {
		if cerr := s.conn.Close(); cerr != nil {
			s.logger.Debug("close connection", zap.Error(cerr))
		}
	}
	s.terminate(reason, err)
	done(string(reason))

	if reason.Clean() {
		return nil
	}
	return err
}

func (s *session) execute(ctx, parent context.Context) (model.TerminationReason, error) {
	s.transition(stateConnecting)
	if reason, err := s.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return s.contextDone(parent)
		}
		return reason, err
	}
	return s.stream(ctx, parent)
}

// connect dials the indexer, performs connection_init and sends the
// subscription.
func (s *session) connect(ctx context.Context) (model.TerminationReason, error) {
	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	conn, err := wsconn.Dial(hctx, s.cfg.IndexerWS, wsconn.Options{
		Subprotocols:     []string{subprotocol},
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	})
	if err != nil {
		return model.ReasonConnectFailed, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	s.conn = conn
	if got := conn.Subprotocol(); got != subprotocol {
		s.logger.Warn("indexer did not confirm subprotocol", zap.String("subprotocol", got))
	}

	if err := conn.WriteJSON(connectionInit()); err != nil {
		return model.ReasonHandshakeFailed, fmt.Errorf("%w: send connection_init: %v", ErrHandshake, err)
	}
	s.transition(stateHandshakeSent)

	if err := s.awaitAck(hctx); err != nil {
		return model.ReasonHandshakeFailed, err
	}

	msg, err := subscribeMessage(s.framed)
	if err != nil {
		return model.ReasonHandshakeFailed, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := conn.WriteJSON(msg); err != nil {
		return model.ReasonHandshakeFailed, fmt.Errorf("%w: send subscribe: %v", ErrHandshake, err)
	}
	s.transition(stateSubscribed)
	return "", nil
}

// awaitAck waits for one response to connection_init. Its content is logged
// but not validated.
func (s *session) awaitAck(ctx context.Context) error {
	for {
		frame, err := s.conn.Next(ctx)
		if err != nil {
			return fmt.Errorf("%w: await connection_init response: %v", ErrHandshake, err)
		}
		switch frame.Kind {
		case wsconn.FrameText, wsconn.FrameBinary:
			var msg wsMessage
			if json.Unmarshal(frame.Data, &msg) == nil {
				s.logger.Debug("connection_init response", zap.String("type", msg.Type))
			}
			return nil
		case wsconn.FramePong:
			continue
		case wsconn.FrameClose:
			return fmt.Errorf("%w: indexer closed during handshake (code %d)", ErrHandshake, frame.CloseCode)
		default:
			return fmt.Errorf("%w: read during handshake: %v", ErrHandshake, frame.Err)
		}
	}
}

func (s *session) stream(ctx, parent context.Context) (model.TerminationReason, error) {
	s.transition(stateStreaming)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	frames := s.conn.Frames()

	for {
		select {
		case now := <-ticker.C:
			if end := s.tick(now); end != nil {
				return end.reason, end.err
			}
		case <-ctx.Done():
			return s.contextDone(parent)
		case frame, ok := <-frames:
			if !ok {
				s.logger.Info("indexer stream ended")
				return model.ReasonStreamEnded, nil
			}
			if end := s.handleFrame(frame); end != nil {
				return end.reason, end.err
			}
		}
	}
}

func (s *session) tick(now time.Time) *ending {
	s.ticks++

	remaining := s.deadline.Sub(now).Round(s.cfg.TickInterval)
	if remaining < 0 {
		remaining = 0
	}
	// Only strictly decreasing values are reported.
	if s.ticks == 1 || remaining < s.lastLeft {
		s.lastLeft = remaining
		if err := s.emit(model.NewTimeLeft(s.id, remaining)); err != nil {
			return endWith(model.ReasonBackpressure, err)
		}
	}

	if s.ticks%s.cfg.KeepAliveEvery == 0 {
		if err := s.conn.Ping(); err != nil {
			s.logger.Warn("keep-alive ping failed", zap.Error(err))
			return endWith(model.ReasonKeepAliveFailed, fmt.Errorf("send keep-alive ping: %w", err))
		}
		metrics.ObserveKeepAlive()
		s.logger.Debug("keep-alive ping sent", zap.Int("tick", s.ticks))
	}
	return nil
}

func (s *session) contextDone(parent context.Context) (model.TerminationReason, error) {
	reason := model.ReasonTimeout
	if parent.Err() != nil {
		reason = model.ReasonCancelled
	}
	s.logger.Info("session deadline reached", zap.String("reason", string(reason)))
	if err := s.emit(model.NewDisconnect(s.id)); err != nil {
		return model.ReasonBackpressure, err
	}
	return reason, nil
}

func (s *session) handleFrame(frame wsconn.Frame) *ending {
	switch frame.Kind {
	case wsconn.FrameText:
		return s.handleText(frame.Data)
	case wsconn.FramePong:
		s.logger.Debug("pong received")
	case wsconn.FrameClose:
		s.logger.Info("indexer closed connection", zap.Int("code", frame.CloseCode), zap.ByteString("text", frame.Data))
		return endWith(model.ReasonRemoteClosed, nil)
	case wsconn.FrameError:
		s.logger.Warn("read from indexer failed", zap.Error(frame.Err))
	default:
		s.logger.Debug("ignoring frame", zap.Stringer("kind", frame.Kind), zap.Int("bytes", len(frame.Data)))
	}
	return nil
}

func (s *session) handleText(data []byte) *ending {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Error("invalid message from indexer", zap.Error(err), zap.ByteString("data", data))
		return endWith(model.ReasonProtocolError, fmt.Errorf("%w: decode message: %v", ErrProtocol, err))
	}

	switch msg.Type {
	case msgPing:
		if err := s.conn.WriteJSON(wsMessage{Type: msgPong}); err != nil {
			s.logger.Warn("answer graphql-ws ping failed", zap.Error(err))
			return endWith(model.ReasonKeepAliveFailed, fmt.Errorf("send graphql-ws pong: %w", err))
		}
		return nil
	case msgPong, msgKeepAlive, msgConnectionAck:
		s.logger.Debug("control message", zap.String("type", msg.Type))
		return nil
	case msgComplete:
		s.logger.Info("indexer completed subscription", zap.String("id", msg.ID))
		return endWith(model.ReasonCompleted, nil)
	case msgError:
		err := fmt.Errorf("%w: indexer error: %s", ErrProtocol, serverError(msg.Payload))
		s.logger.Error("subscription error", zap.Error(err))
		return endWith(model.ReasonProtocolError, err)
	}

	event, err := parseContractAction(msg.Payload)
	if err != nil {
		s.logger.Error("unexpected message from indexer", zap.Error(err), zap.String("type", msg.Type))
		return endWith(model.ReasonProtocolError, err)
	}

	raw, err := ledger.DecodeHex(event.State)
	if err != nil {
		s.logger.Error("contract state is not hex", zap.Error(err), zap.String("chain_state", event.ChainState))
		return endWith(model.ReasonInvalidState, fmt.Errorf("%w: %v", ErrInvalidState, err))
	}

	rendered, err := s.cfg.Decoder.Decode(raw, s.cfg.Network)
	if err != nil {
		metrics.ObserveStateDecode(false)
		s.logger.Warn("decode contract state", zap.Error(err), zap.String("type_name", event.TypeName), zap.String("chain_state", event.ChainState))
	} else {
		metrics.ObserveStateDecode(true)
		event.Enrich(rendered)
	}

	if err := s.emit(model.NewContractEvent(s.id, *event)); err != nil {
		return endWith(model.ReasonBackpressure, err)
	}
	return nil
}

func (s *session) emit(event model.Event) error {
	select {
	case s.out <- event:
		metrics.ObserveEmitted(string(event.Kind))
		return nil
	default:
		s.logger.Warn("consumer channel full", zap.String("kind", string(event.Kind)))
		return fmt.Errorf("%w: dropped %s event", ErrBackpressure, event.Kind)
	}
}

// terminate reports the final status and closes the consumer channel. After a
// backpressure failure nothing more is sent.
func (s *session) terminate(reason model.TerminationReason, err error) {
	s.transition(stateTerminated)

	fields := []zap.Field{zap.String("reason", string(reason)), zap.Int("ticks", s.ticks)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if reason.Clean() {
		s.logger.Info("session end", fields...)
	} else {
		s.logger.Warn("session end", fields...)
	}

	if reason != model.ReasonBackpressure {
		var reportErr error
		if !reason.Clean() {
			reportErr = err
		}
		_ = s.emit(model.NewTerminated(s.id, reason, reportErr))
	}
	close(s.out)
}

func (s *session) transition(state sessionState) {
	s.logger.Debug("session state", zap.String("state", string(state)))
}
