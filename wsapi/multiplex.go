package wsapi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"atrade/schema"
	"atrade/venues/binance"
)

const (
	preSubscribeTimeout = 60 * time.Second
	idleTimeout         = 300 * time.Second
)

// controlMessage 是客户端发往多路复用端点的控制帧。
type controlMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// outgoing 是多路复用会话内部的统一出站消息：要么是一条归一化事件，要么是
// 一个错误信封。
type outgoing struct {
	event     *schema.Event
	errCode   string
	errMsg    string
	symbol    string
	closeCode int // 非0时，写完错误信封后发送关闭帧并结束写循环
}

// multiplexSession 承载单个 /ws/binance/multi/ohlc 连接的全部可变状态。
type multiplexSession struct {
	conn       *websocket.Conn
	sessionID  string
	interval   string
	maxSymbols int
	maxBackoff int

	out chan outgoing

	mu             sync.Mutex
	cancels        map[string]context.CancelFunc
	wg             sync.WaitGroup
	subscribedOnce bool
}

// handleMultiplex 实现多交易对K线多路复用端点的订阅/取消订阅控制协议。
func (s *Server) handleMultiplex(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		interval = "1m"
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("升级失败")
		return
	}
	defer conn.Close()

	sess := &multiplexSession{
		conn:       conn,
		sessionID:  uuid.NewString(),
		interval:   interval,
		maxSymbols: s.maxSymbols,
		maxBackoff: s.maxBackoff,
		out:        make(chan outgoing, 256),
		cancels:    make(map[string]context.CancelFunc),
	}
	sessLog := log.With().Str("session", sess.sessionID).Logger()

	writerDone := make(chan struct{})
	go sess.writeLoop(writerDone)

	sess.conn.SetReadDeadline(time.Now().Add(preSubscribeTimeout))
	for {
		var msg controlMessage
		if err := sess.conn.ReadJSON(&msg); err != nil {
			if !sess.subscribedOnce {
				sess.closeWith(1008, "TIMEOUT", "no subscribe message before pre-subscription timeout")
			}
			break
		}

		switch strings.ToLower(msg.Action) {
		case "subscribe":
			sess.handleSubscribe(msg.Symbols)
			sess.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		case "unsubscribe":
			if !sess.subscribedOnce {
				sess.closeWith(1008, "INVALID_ACTION", "first message must be subscribe")
				goto shutdown
			}
			sess.handleUnsubscribe(msg.Symbols)
		default:
			if !sess.subscribedOnce {
				sess.closeWith(1008, "INVALID_ACTION", "first message must be subscribe")
				goto shutdown
			}
			sess.out <- outgoing{errCode: "INVALID_ACTION", errMsg: "unknown action " + msg.Action}
		}
	}
shutdown:

	sess.mu.Lock()
	for _, cancel := range sess.cancels {
		cancel()
	}
	sess.mu.Unlock()
	sess.wg.Wait()
	close(sess.out)
	<-writerDone
	sessLog.Info().Msg("多路复用会话结束")
}

func (s *multiplexSession) handleSubscribe(rawSymbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribedOnce = true

	for _, raw := range rawSymbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if !strings.HasSuffix(symbol, "USDT") {
			s.out <- outgoing{errCode: "INVALID_SYMBOL", errMsg: "symbol must end in USDT", symbol: symbol}
			continue
		}
		if _, exists := s.cancels[symbol]; exists {
			continue
		}
		if len(s.cancels) >= s.maxSymbols {
			s.out <- outgoing{errCode: "RATE_LIMIT", errMsg: "max_symbols_per_connection exceeded", symbol: symbol}
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		s.cancels[symbol] = cancel
		s.wg.Add(1)
		go s.runSymbol(ctx, symbol)
	}
}

func (s *multiplexSession) handleUnsubscribe(rawSymbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range rawSymbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if cancel, ok := s.cancels[symbol]; ok {
			cancel()
			delete(s.cancels, symbol)
		}
	}
}

// runSymbol 驱动单个交易对的K线上游连接；取消时退出并让 wg 清账。
func (s *multiplexSession) runSymbol(ctx context.Context, symbol string) {
	defer s.wg.Done()
	client := binance.NewKlineStream(symbol, s.interval, s.maxBackoff)
	events, err := client.Stream(ctx)
	if err != nil {
		s.out <- outgoing{errCode: "SUBSCRIPTION_FAILED", errMsg: err.Error(), symbol: symbol}
		return
	}
	for {
		select {
		case <-ctx.Done():
			client.Close()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			evCopy := ev
			select {
			case s.out <- outgoing{event: &evCopy}:
			case <-ctx.Done():
				client.Close()
				return
			}
		}
	}
}

// writeLoop 是该连接唯一的写入者，串行化所有出站帧。
func (s *multiplexSession) writeLoop(done chan<- struct{}) {
	defer close(done)
	for msg := range s.out {
		s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		var err error
		if msg.event != nil {
			err = s.conn.WriteJSON(msg.event.Envelope())
		} else {
			err = writeErrorEnvelope(s.conn, msg.errCode, msg.errMsg, msg.symbol)
		}
		if msg.closeCode != 0 {
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(msg.closeCode, msg.errMsg))
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *multiplexSession) closeWith(code int, errCode, reason string) {
	s.out <- outgoing{errCode: errCode, errMsg: reason, closeCode: code}
}
