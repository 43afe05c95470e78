package link

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"roadsense-edge/internal/observability"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 2 * time.Second
)

// envelope es el framing NDJSON hacia el backend: un evento por línea.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Client mantiene la conexión persistente hacia el backend, registrada bajo
// el device id en cada (re)conexión. La reconexión es automática e ilimitada,
// con delay acotado entre ReconnectMin y ReconnectMax.
type Client struct {
	addr     string
	deviceID string
	minDelay time.Duration
	maxDelay time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	state   State
	running bool

	// wmu serializa las escrituras: registerDevice sale del connectLoop y los
	// frames del loop de control, y dos Write sobre el mismo conn se mezclan.
	wmu sync.Mutex
}

func NewClient(addr, deviceID string, minDelay, maxDelay time.Duration, lg *slog.Logger) *Client {
	return &Client{
		addr:     addr,
		deviceID: deviceID,
		minDelay: minDelay,
		maxDelay: maxDelay,
		logger:   lg.With("component", "link"),
	}
}

// Start arranca el loop de conexión. Si addr == "", el canal queda
// deshabilitado y todos los envíos caen al fallback.
func (c *Client) Start() {
	if c.addr == "" {
		c.logger.Info("link: disabled (no stream address configured)")
		return
	}
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	go c.connectLoop()
}

// -------------------------------------------------------------------
//                        LOOP DE CONEXIÓN
// -------------------------------------------------------------------

func (c *Client) connectLoop() {
	delay := c.minDelay
	for c.isRunning() {
		c.setState(StateConnecting)

		conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
		if err != nil {
			c.setState(StateDisconnected)
			c.logger.Error("link: dial failed", "addr", c.addr, "err", err)
			time.Sleep(delay)
			delay = nextDelay(delay, c.maxDelay)
			continue
		}

		c.setConn(conn)
		c.onConnected(conn)
		delay = c.minDelay

		// leer en este hilo hasta que se caiga
		c.readLoop(conn)

		c.clearConn(conn)
		c.setState(StateDisconnected)
		if c.isRunning() {
			c.logger.Warn("link: connection closed, reconnecting...")
			time.Sleep(delay)
		}
	}
}

// onConnected corre al entrar a Connected: registra el device en el backend.
func (c *Client) onConnected(conn net.Conn) {
	c.setState(StateConnected)
	observability.LinkReconnects.Inc()
	c.logger.Info("link: connected", "remote", conn.RemoteAddr().String())

	if err := c.Send("registerDevice", c.deviceID); err != nil {
		c.logger.Warn("link: send registerDevice failed", "device", c.deviceID, "err", err)
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) clearConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) getConn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State devuelve el estado actual del canal.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected es el flag que consume la selección de canal en transport.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

func (c *Client) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// -------------------------------------------------------------------
//                           LECTURA
// -------------------------------------------------------------------

func (c *Client) readLoop(conn net.Conn) {
	r := bufio.NewScanner(conn)
	for r.Scan() {
		if !c.isRunning() {
			return
		}
		c.logger.Debug("link: incoming line", "line", r.Text())
	}
	if err := r.Err(); err != nil && err != io.EOF && c.isRunning() {
		c.logger.Warn("link: read error", "err", err)
	}
}

// -------------------------------------------------------------------
//                          ENVÍO NDJSON
// -------------------------------------------------------------------

// Send serializa {"event":...,"data":...} y lo escribe con deadline corto,
// una línea entera por llamada. Un fallo de escritura tira la conexión para
// forzar fallback + reconexión.
func (c *Client) Send(event string, data any) error {
	conn := c.getConn()
	if conn == nil {
		return fmt.Errorf("link: not connected")
	}
	b, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err = conn.Write(append(b, '\n')); err != nil {
		c.clearConn(conn)
		c.setState(StateDisconnected)
		return err
	}
	return nil
}

// Close termina el loop cooperativamente y cierra la conexión actual.
func (c *Client) Close() {
	c.mu.Lock()
	c.running = false
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
