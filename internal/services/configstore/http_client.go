package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/interfaces"
)

// HTTPClient talks to the remote configuration service. Documents are
// fetched and published over plain HTTP; change pushes arrive on a
// WebSocket subscription that reconnects with backoff and resubscribes.
type HTTPClient struct {
	baseURL   string
	namespace string
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
	logger    arbor.ILogger

	mu         sync.Mutex
	listeners  map[string][]interfaces.ConfigListener
	dispatcher *dispatcher
	conn       *websocket.Conn
	closed     bool
	done       chan struct{}
}

// subscribeMessage is sent over the WebSocket to watch a data id
type subscribeMessage struct {
	Type      string `json:"type"`
	DataID    string `json:"dataId"`
	Group     string `json:"group"`
	Namespace string `json:"namespace"`
}

// pushMessage is a document change delivered by the remote side
type pushMessage struct {
	DataID  string `json:"dataId"`
	Group   string `json:"group"`
	Content string `json:"content"`
}

// NewHTTPClient creates a client against the given service address
func NewHTTPClient(cfg *common.ConfigStoreConfig, logger arbor.ILogger) *HTTPClient {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}

	return &HTTPClient{
		baseURL:   strings.TrimRight(cfg.Addr, "/"),
		namespace: cfg.Namespace,
		timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
		http:      &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		limiter:   rate.NewLimiter(rate.Limit(rps), rps),
		logger:    logger,
		listeners: make(map[string][]interfaces.ConfigListener),
		dispatcher: newDispatcher(),
		done:      make(chan struct{}),
	}
}

// GetConfig fetches a document by data id; "" when the document does not exist
func (c *HTTPClient) GetConfig(ctx context.Context, dataID, group string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", common.TransientRemoteError(err, "rate limit wait aborted")
	}

	endpoint := fmt.Sprintf("%s/v1/cs/configs?dataId=%s&group=%s&namespace=%s",
		c.baseURL, url.QueryEscape(dataID), url.QueryEscape(group), url.QueryEscape(c.namespace))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", common.TransientRemoteError(err, "failed to build config request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", common.TransientRemoteError(err, "config fetch failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", common.TransientRemoteError(err, "failed to read config body")
		}
		return string(body), nil
	case http.StatusNotFound:
		return "", nil
	default:
		return "", common.TransientRemoteError(
			fmt.Errorf("unexpected status %d", resp.StatusCode), "config fetch failed")
	}
}

// PublishConfig pushes a document; false when the remote rejected it
func (c *HTTPClient) PublishConfig(ctx context.Context, dataID, group, content string) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, common.TransientRemoteError(err, "rate limit wait aborted")
	}

	form := url.Values{}
	form.Set("dataId", dataID)
	form.Set("group", group)
	form.Set("namespace", c.namespace)
	form.Set("content", content)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/cs/configs", strings.NewReader(form.Encode()))
	if err != nil {
		return false, common.TransientRemoteError(err, "failed to build publish request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, common.TransientRemoteError(err, "config publish failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().
			Str("data_id", dataID).
			Int("status", resp.StatusCode).
			Msg("Config publish rejected by remote")
		return false, nil
	}

	return true, nil
}

// AddListener subscribes to changes of a data id. The WebSocket session
// is established lazily on the first subscription.
func (c *HTTPClient) AddListener(dataID, group string, listener interfaces.ConfigListener) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return common.TransientRemoteError(fmt.Errorf("client closed"), "cannot add listener")
	}

	key := docKey(dataID, group)
	first := len(c.listeners) == 0
	c.listeners[key] = append(c.listeners[key], listener)
	conn := c.conn
	c.mu.Unlock()

	if first {
		go c.listenLoop()
		return nil
	}

	// Session already up: subscribe immediately rather than waiting for
	// the next reconnect sweep.
	if conn != nil {
		if err := c.sendSubscribe(conn, dataID, group); err != nil {
			c.logger.Warn().Err(err).Str("data_id", dataID).Msg("Subscribe send failed, will retry on reconnect")
		}
	}
	return nil
}

// RemoveListener drops all listeners for a data id
func (c *HTTPClient) RemoveListener(dataID, group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, docKey(dataID, group))
}

// Close tears down the subscription session and the dispatcher
func (c *HTTPClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		conn.Close()
	}
	c.dispatcher.close()
	return nil
}

func (c *HTTPClient) sendSubscribe(conn *websocket.Conn, dataID, group string) error {
	return conn.WriteJSON(subscribeMessage{
		Type:      "subscribe",
		DataID:    dataID,
		Group:     group,
		Namespace: c.namespace,
	})
}

// listenLoop maintains the WebSocket session: connect, resubscribe every
// registered data id, pump pushes into the dispatcher, reconnect with
// backoff on failure.
func (c *HTTPClient) listenLoop() {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, err := c.connect()
		if err != nil {
			c.logger.Warn().Err(err).Msg("Config store subscription connect failed, retrying")
			select {
			case <-c.done:
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		c.mu.Lock()
		c.conn = conn
		keys := make([]string, 0, len(c.listeners))
		for key := range c.listeners {
			keys = append(keys, key)
		}
		c.mu.Unlock()

		subscribed := true
		for _, key := range keys {
			group, dataID, ok := strings.Cut(key, "/")
			if !ok {
				continue
			}
			if err := c.sendSubscribe(conn, dataID, group); err != nil {
				c.logger.Warn().Err(err).Str("data_id", dataID).Msg("Resubscribe failed")
				subscribed = false
				break
			}
		}

		if subscribed {
			c.logger.Info().Int("subscriptions", len(keys)).Msg("Config store subscription session established")
			c.readPushes(conn)
		}

		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}
}

func (c *HTTPClient) connect() (*websocket.Conn, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/v1/cs/listen"

	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", wsURL, err)
	}
	return conn, nil
}

func (c *HTTPClient) readPushes(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn().Err(err).Msg("Config store subscription read failed, reconnecting")
			}
			return
		}

		var push pushMessage
		if err := json.Unmarshal(data, &push); err != nil {
			c.logger.Warn().Err(err).Msg("Discarding malformed config push")
			continue
		}

		c.mu.Lock()
		listeners := append([]interfaces.ConfigListener(nil), c.listeners[docKey(push.DataID, push.Group)]...)
		c.mu.Unlock()

		c.dispatcher.submit(push.DataID, push.Content, listeners)
	}
}
