// Package streamtest provides an in-process WebSocket feed for tests.
package streamtest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
)

// Server 模拟行情推送服务
type Server struct {
	*httptest.Server

	accepted atomic.Int32

	mu    sync.Mutex
	conns []*websocket.Conn
	paths []string
}

// NewServer starts a feed; handler runs once per accepted connection and the
// connection is closed when it returns.
func NewServer(t *testing.T, handler func(*websocket.Conn)) *Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.paths = append(s.paths, r.URL.RequestURI())
		s.mu.Unlock()
		s.accepted.Inc()

		handler(conn)
	}))
	t.Cleanup(s.Server.Close)
	return s
}

// URL 返回ws://形式的地址
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// Accepted 已接受的连接数
func (s *Server) Accepted() int {
	return int(s.accepted.Load())
}

// Paths 每个连接请求的path和query, 按接受顺序
func (s *Server) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// Broadcast 向所有已接受的连接写文本消息, 写失败的连接被忽略
func (s *Server) Broadcast(payload string) {
	s.mu.Lock()
	conns := make([]*websocket.Conn, len(s.conns))
	copy(conns, s.conns)
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.WriteMessage(websocket.TextMessage, []byte(payload))
	}
}

// Hold 读到出错为止, 保持连接打开
func Hold(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// CloseWith 发送带关闭码的关闭帧
func CloseWith(conn *websocket.Conn, code int) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
		time.Now().Add(time.Second))
}

// Drop 直接断开TCP连接, 客户端看到1006
func Drop(conn *websocket.Conn) {
	_ = conn.UnderlyingConn().Close()
}
