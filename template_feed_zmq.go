package stratumcore

import (
	"context"
	"encoding/hex"
	"fmt"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
)

const (
	zmqRecreateBackoffMin = 500 * time.Millisecond
	zmqRecreateBackoffMax = 30 * time.Second
	zmqReceiveTimeout     = time.Second
	zmqConnectTimeout     = 5 * time.Second
	zmqReconnectInterval  = time.Second
	zmqReconnectMax       = 10 * time.Second
	zmqHeartbeatInterval  = 5 * time.Second
	zmqHeartbeatTimeout   = 15 * time.Second
	zmqHeartbeatTTL       = 30 * time.Second
)

func (f *TemplateFeed) markZMQHealthy() {
	if f.zmqHealthy.Swap(true) {
		return
	}
	verb := "connected"
	if f.zmqDisconnects.Load() > 0 {
		verb = "reconnected"
	}
	f.zmqReconnects.Add(1)
	logger.Info("zmq watcher "+verb, "addr", f.opts.ZMQHashBlockAddr)
}

func (f *TemplateFeed) markZMQUnhealthy(reason string, err error) {
	fields := []interface{}{"reason", reason}
	if err != nil {
		fields = append(fields, "error", err)
	}
	if f.zmqHealthy.Swap(false) {
		f.zmqDisconnects.Add(1)
		logger.Warn("zmq watcher unhealthy", fields...)
	} else if err != nil {
		logger.Error("zmq watcher error", fields...)
	}
}

func nextZMQBackoff(backoff time.Duration) time.Duration {
	backoff *= 2
	if backoff > zmqRecreateBackoffMax {
		backoff = zmqRecreateBackoffMax
	}
	return backoff
}

func isZMQTimeout(err error) bool {
	eno := zmq4.AsErrno(err)
	return eno == zmq4.Errno(syscall.EAGAIN) || eno == zmq4.ETIMEDOUT
}

func (f *TemplateFeed) handleZMQNotification(ctx context.Context, topic string, payload []byte) error {
	f.markZMQHealthy()
	if topic != "hashblock" {
		return nil
	}
	logger.Info("zmq block notification", "block_hash", hex.EncodeToString(payload))
	return f.Refresh(ctx)
}

// newZMQSubscriber creates a hashblock SUB socket connected to addr.
func newZMQSubscriber(addr string) (*zmq4.Socket, error) {
	sub, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	_ = sub.SetLinger(0)
	if err := sub.SetSubscribe("hashblock"); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if err := sub.SetRcvtimeo(zmqReceiveTimeout); err != nil {
		sub.Close()
		return nil, fmt.Errorf("set_rcvtimeo: %w", err)
	}
	if err := sub.SetConnectTimeout(zmqConnectTimeout); err != nil {
		logger.Debug("zmq set connect timeout failed (ignored)", "error", err)
	}
	_ = sub.SetReconnectIvl(zmqReconnectInterval)
	_ = sub.SetReconnectIvlMax(zmqReconnectMax)
	_ = sub.SetHeartbeatIvl(zmqHeartbeatInterval)
	_ = sub.SetHeartbeatTimeout(zmqHeartbeatTimeout)
	_ = sub.SetHeartbeatTtl(zmqHeartbeatTTL)
	if err := sub.Connect(addr); err != nil {
		sub.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return sub, nil
}

// zmqBlockLoop refreshes on every hashblock notification from a node started
// with -zmqpubhashblock. The socket is recreated with backoff on failure.
func (f *TemplateFeed) zmqBlockLoop(ctx context.Context) {
	backoff := zmqRecreateBackoffMin
	for {
		if ctx.Err() != nil {
			return
		}
		sub, err := newZMQSubscriber(f.opts.ZMQHashBlockAddr)
		if err != nil {
			f.markZMQUnhealthy("setup", err)
			if err := sleepContext(ctx, backoff); err != nil {
				return
			}
			backoff = nextZMQBackoff(backoff)
			continue
		}

		logger.Info("watching ZMQ block notifications", "addr", f.opts.ZMQHashBlockAddr)
		backoff = zmqRecreateBackoffMin
		if !f.receiveZMQ(ctx, sub) {
			return
		}
		if err := sleepContext(ctx, backoff); err != nil {
			return
		}
		backoff = nextZMQBackoff(backoff)
	}
}

// receiveZMQ reads notifications until the socket fails or ctx ends. It
// closes sub and reports whether the caller should reconnect.
func (f *TemplateFeed) receiveZMQ(ctx context.Context, sub *zmq4.Socket) bool {
	defer sub.Close()
	for {
		if ctx.Err() != nil {
			return false
		}
		frames, err := sub.RecvMessageBytes(0)
		if err != nil {
			if isZMQTimeout(err) {
				continue
			}
			f.markZMQUnhealthy("receive", err)
			return true
		}
		if len(frames) < 2 {
			logger.Warn("zmq notification malformed", "frames", len(frames))
			continue
		}
		topic := string(frames[0])
		if err := f.handleZMQNotification(ctx, topic, frames[1]); err != nil {
			logger.Error("refresh after zmq notification error", "topic", topic, "error", err)
			if err := sleepContext(ctx, jobRetryDelay); err != nil {
				return false
			}
		}
	}
}
