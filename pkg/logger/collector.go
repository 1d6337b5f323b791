package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"sync"
	"time"
)

// Publisher ships a batch of aggregated lines to a topic (Kafka in production).
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct lines before an early flush
	Topic          string
	Publisher      Publisher
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector deduplicates repeated error lines (same level, message, fields
// and caller) and publishes them in batches. A loop that fails every cycle
// therefore produces one entry with a count instead of a flood.
type LogCollector struct {
	config  *CollectionConfig
	entries map[uint64]*AggregatedLogEntry
	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	c := &LogCollector{
		config:  config,
		entries: make(map[uint64]*AggregatedLogEntry),
		stop:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	var batch []AggregatedLogEntry
	if len(c.entries) >= c.config.CountThreshold {
		batch = c.drainLocked()
	}
	c.mu.Unlock()

	if batch != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.publish(batch)
		}()
	}
}

// entryKey hashes the JSON form; encoding/json sorts map keys so equal field sets collide.
func entryKey(level, message string, fields map[string]interface{}, caller string) uint64 {
	b, _ := json.Marshal(struct {
		L string                 `json:"l"`
		M string                 `json:"m"`
		F map[string]interface{} `json:"f"`
		C string                 `json:"c"`
	}{level, message, fields, caller})
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (c *LogCollector) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

func (c *LogCollector) flush() {
	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()
	c.publish(batch)
}

func (c *LogCollector) drainLocked() []AggregatedLogEntry {
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)
	return out
}

func (c *LogCollector) publish(batch []AggregatedLogEntry) {
	if len(batch) == 0 || c.config.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, batch); err != nil {
		// the logger itself is the thing failing; stderr is all that is left
		fmt.Fprintf(os.Stderr, "log collector: publish to %s failed: %v\n", c.config.Topic, err)
	}
}

// Close flushes pending entries and waits for in-flight publishes.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}
