package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/interfaces"
)

// KeyListener receives per-property change notifications
type KeyListener func(key, newValue string)

// Service is the config store adapter. Property reads see a merged view
// with precedence: local cache (populated from published documents) ->
// process environment -> remote fetch on demand -> default. Document
// subscriptions fan out through the client's serial per-data-id worker.
type Service struct {
	client interfaces.ConfigClient
	config *common.ConfigStoreConfig
	logger arbor.ILogger

	mu           sync.RWMutex
	cache        map[string]string
	keyListeners map[string][]KeyListener
	subscribed   map[string]bool
	pending      []pendingSubscription
	closed       bool
}

type pendingSubscription struct {
	dataID   string
	listener interfaces.ConfigListener
}

// NewService creates the adapter and loads the primary document into the
// cache. Remote unavailability degrades to environment/defaults; the
// primary subscription is deferred and retried on Refresh.
func NewService(client interfaces.ConfigClient, config *common.ConfigStoreConfig, logger arbor.ILogger) *Service {
	s := &Service{
		client:       client,
		config:       config,
		logger:       logger,
		cache:        make(map[string]string),
		keyListeners: make(map[string][]KeyListener),
		subscribed:   make(map[string]bool),
	}

	if err := s.loadPrimary(context.Background()); err != nil {
		logger.Warn().Err(err).
			Str("data_id", config.DataID).
			Msg("Config store unavailable at startup, using environment and defaults")
	}

	if err := s.Subscribe(config.DataID, s.onPrimaryChanged); err != nil {
		logger.Warn().Err(err).Msg("Primary document subscription deferred")
	}

	return s
}

// GetString reads a property through the merged view
func (s *Service) GetString(key, defaultValue string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return defaultValue
}

// GetInt reads an integer property through the merged view
func (s *Service) GetInt(key string, defaultValue int) int {
	if value, ok := s.lookup(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
		s.logger.Warn().Str("key", key).Str("value", value).Msg("Property is not an integer, using default")
	}
	return defaultValue
}

// GetBool reads a boolean property through the merged view
func (s *Service) GetBool(key string, defaultValue bool) bool {
	if value, ok := s.lookup(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
		s.logger.Warn().Str("key", key).Str("value", value).Msg("Property is not a boolean, using default")
	}
	return defaultValue
}

func (s *Service) lookup(key string) (string, bool) {
	s.mu.RLock()
	value, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return value, true
	}

	if value, ok := lookupEnv(key); ok {
		return value, true
	}

	// On-demand remote fetch: re-pull the primary document once and
	// re-check. Failures here are expected when the remote is down.
	if err := s.loadPrimary(context.Background()); err == nil {
		s.mu.RLock()
		value, ok = s.cache[key]
		s.mu.RUnlock()
		if ok {
			return value, true
		}
	}

	return "", false
}

// lookupEnv tries the key verbatim, then the conventional upper-snake form
func lookupEnv(key string) (string, bool) {
	if value, ok := os.LookupEnv(key); ok {
		return value, true
	}
	upper := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	if value, ok := os.LookupEnv(upper); ok {
		return value, true
	}
	return "", false
}

// PublishConfig pushes a document to the config store. Best-effort: a
// rejected or failed publish returns false. The local cache refreshes
// through the primary document subscription, which keeps all applies on
// one ordered path.
func (s *Service) PublishConfig(ctx context.Context, content, dataID, group string) bool {
	ok, err := s.client.PublishConfig(ctx, dataID, group, content)
	if err != nil {
		s.logger.Warn().Err(err).Str("data_id", dataID).Msg("Config publish failed")
		return false
	}
	return ok
}

// AddListener registers a per-property listener. The callback receives
// (key, newValue) whenever the primary document changes that key.
func (s *Service) AddListener(key string, listener KeyListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyListeners[key] = append(s.keyListeners[key], listener)
}

// Subscribe registers a document listener with the remote client. A
// data id already subscribed is ignored. When the remote is unavailable
// the subscription is queued and retried on the next Refresh.
func (s *Service) Subscribe(dataID string, listener interfaces.ConfigListener) error {
	s.mu.Lock()
	if s.subscribed[dataID] {
		s.mu.Unlock()
		return nil
	}
	s.subscribed[dataID] = true
	s.mu.Unlock()

	if err := s.client.AddListener(dataID, s.config.Group, listener); err != nil {
		s.mu.Lock()
		s.pending = append(s.pending, pendingSubscription{dataID: dataID, listener: listener})
		s.mu.Unlock()
		return err
	}
	return nil
}

// Refresh re-fetches the primary document and retries any deferred
// document subscriptions.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, sub := range pending {
		if err := s.client.AddListener(sub.dataID, s.config.Group, sub.listener); err != nil {
			s.mu.Lock()
			s.pending = append(s.pending, sub)
			s.mu.Unlock()
			s.logger.Warn().Err(err).Str("data_id", sub.dataID).Msg("Subscription retry failed")
		} else {
			s.logger.Info().Str("data_id", sub.dataID).Msg("Deferred subscription established")
		}
	}

	return s.loadPrimary(ctx)
}

// Group returns the configured document group
func (s *Service) Group() string {
	return s.config.Group
}

// Close releases listeners and the cache; remote removal is best-effort
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cache = make(map[string]string)
	s.keyListeners = make(map[string][]KeyListener)
	s.subscribed = make(map[string]bool)
	s.pending = nil
	s.mu.Unlock()

	s.client.RemoveListener(s.config.DataID, s.config.Group)
	return s.client.Close()
}

func (s *Service) loadPrimary(ctx context.Context) error {
	content, err := s.client.GetConfig(ctx, s.config.DataID, s.config.Group)
	if err != nil {
		return err
	}
	if content == "" {
		return nil
	}
	s.applyPrimary(content)
	return nil
}

// onPrimaryChanged is the document listener for the primary data id
func (s *Service) onPrimaryChanged(dataID, content string) {
	s.applyPrimary(content)
}

// applyPrimary parses the document per the configured format, swaps the
// cache, and dispatches per-key listeners for changed keys. A document
// that does not match the configured format loads nothing.
func (s *Service) applyPrimary(content string) {
	parsed, err := parseDocument(content, s.config.Format)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("format", s.config.Format).
			Msg("Primary document does not match configured format, no values loaded")
		return
	}

	s.mu.Lock()
	changed := make(map[string]string)
	for key, value := range parsed {
		if old, ok := s.cache[key]; !ok || old != value {
			changed[key] = value
		}
	}
	s.cache = parsed

	type dispatchTarget struct {
		listener KeyListener
		key      string
		value    string
	}
	var targets []dispatchTarget
	for key, value := range changed {
		for _, listener := range s.keyListeners[key] {
			targets = append(targets, dispatchTarget{listener: listener, key: key, value: value})
		}
	}
	s.mu.Unlock()

	for _, t := range targets {
		t.listener(t.key, t.value)
	}

	s.logger.Debug().
		Int("keys", len(parsed)).
		Int("changed", len(changed)).
		Msg("Primary configuration document applied")
}

// parseDocument converts a document into property-path -> value pairs.
// json: a flat object whose first-level keys are the property paths.
// yaml: a nested document flattened to dotted leaf paths.
func parseDocument(content, format string) (map[string]string, error) {
	switch format {
	case "json":
		var raw map[string]any
		if err := json.Unmarshal([]byte(content), &raw); err != nil {
			return nil, fmt.Errorf("not a flat JSON object: %w", err)
		}
		result := make(map[string]string, len(raw))
		for key, value := range raw {
			result[key] = stringifyScalar(value)
		}
		return result, nil
	case "yaml":
		var raw map[string]any
		if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
			return nil, fmt.Errorf("not a YAML mapping: %w", err)
		}
		result := make(map[string]string)
		flattenYAML("", raw, result)
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported document format %q", format)
	}
}

func flattenYAML(prefix string, node map[string]any, out map[string]string) {
	for key, value := range node {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if child, ok := value.(map[string]any); ok {
			flattenYAML(path, child, out)
			continue
		}
		out[path] = stringifyScalar(value)
	}
}

func stringifyScalar(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		// Numbers, booleans, and structured values keep their JSON form
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
