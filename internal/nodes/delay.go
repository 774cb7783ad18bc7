package nodes

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	delayConfig struct {
		PauseType    string `json:"pauseType"`
		Timeout      number `json:"timeout"`
		TimeoutUnits string `json:"timeoutUnits"`
		Rate         number `json:"rate"`
		NbRateUnits  number `json:"nbRateUnits"`
		RateUnits    string `json:"rateUnits"`
		RandomFirst  number `json:"randomFirst"`
		RandomLast   number `json:"randomLast"`
		RandomUnits  string `json:"randomUnits"`
		Drop         bool   `json:"drop"`
		AllowRate    bool   `json:"allowrate"`
		Outputs      int    `json:"outputs"`
	}

	// delayTimer holds each message on its own timer
	delayTimer struct {
		wait    func(msg api.Msg) time.Duration
		pending []*timedMsg
	}

	timedMsg struct {
		held
		timer engine.TimerID
	}

	// rateLimit releases at most one message per interval, buffering or
	// dropping the rest
	rateLimit struct {
		configured time.Duration
		interval   time.Duration
		period     time.Duration
		allowRate  bool
		drop       bool
		outputs    int
		buffer     []held
		ticker     engine.TimerID
		ticking    bool
		warned     bool
	}

	// topicQueue keeps the newest message per topic and releases one
	// topic per tick, or everything when timed
	topicQueue struct {
		interval time.Duration
		timed    bool
		topics   []string
		byTopic  map[string]held
		warned   bool
	}
)

const (
	pauseDelay  = "delay"
	pauseMsg    = "delayv"
	pauseRandom = "random"
	pauseRate   = "rate"
	pauseQueue  = "queue"
	pauseTimed  = "timed"

	delayTooMany = "delay.too-many"
)

func newDelay(_ *engine.Node, cfg *api.NodeConfig) (engine.Handler, error) {
	c := &delayConfig{
		PauseType:   pauseDelay,
		Timeout:     5,
		Rate:        1,
		NbRateUnits: 1,
		RateUnits:   "second",
		Outputs:     1,
	}
	if err := cfg.Decode(c); err != nil {
		return nil, err
	}

	switch c.PauseType {
	case pauseDelay, pauseMsg, pauseRandom:
		return c.timerHandler()
	case pauseRate:
		interval, err := c.interval()
		if err != nil {
			return nil, err
		}
		return &rateLimit{
			configured: interval,
			interval:   interval,
			allowRate:  c.AllowRate,
			drop:       c.Drop,
			outputs:    c.Outputs,
		}, nil
	case pauseQueue, pauseTimed:
		interval, err := c.interval()
		if err != nil {
			return nil, err
		}
		return &topicQueue{
			interval: interval,
			timed:    c.PauseType == pauseTimed,
			byTopic:  map[string]held{},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown pause type %q",
			ErrInvalidConfig, c.PauseType)
	}
}

func (c *delayConfig) timerHandler() (engine.Handler, error) {
	fixed, err := duration(c.Timeout, c.TimeoutUnits)
	if err != nil {
		return nil, err
	}
	if fixed < 0 {
		return nil, fmt.Errorf("%w: negative delay", ErrInvalidConfig)
	}

	h := &delayTimer{}
	switch c.PauseType {
	case pauseMsg:
		h.wait = func(msg api.Msg) time.Duration {
			if ms, ok := toFloat(msg[api.KeyDelay]); ok && ms >= 0 {
				return millis(ms)
			}
			return fixed
		}
	case pauseRandom:
		first, err := duration(c.RandomFirst, c.RandomUnits)
		if err != nil {
			return nil, err
		}
		last, err := duration(c.RandomLast, c.RandomUnits)
		if err != nil {
			return nil, err
		}
		lo, hi := min(first, last), max(first, last)
		h.wait = func(api.Msg) time.Duration {
			if hi == lo {
				return lo
			}
			return lo + rand.N(hi-lo)
		}
	default:
		h.wait = func(api.Msg) time.Duration {
			return fixed
		}
	}
	return h, nil
}

// interval is the spacing between releases: nbRateUnits rateUnits
// divided among rate messages
func (c *delayConfig) interval() (time.Duration, error) {
	if c.Rate <= 0 || c.NbRateUnits <= 0 {
		return 0, fmt.Errorf("%w: rate must be positive", ErrInvalidConfig)
	}
	span, err := duration(c.NbRateUnits, c.RateUnits)
	if err != nil {
		return 0, err
	}
	return time.Duration(float64(span) / float64(c.Rate)), nil
}

func (h *delayTimer) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	switch {
	case msg.Has(api.KeyReset):
		h.reset(n)
		done(nil)
		return
	case msg.Has(api.KeyFlush):
		h.flush(n, flushCount(msg, len(h.pending)))
		done(nil)
		return
	}

	t := &timedMsg{held: held{msg: msg, done: done}}
	t.timer = n.After(h.wait(msg), func() {
		h.remove(t)
		t.forward(n)
		countStatus(n, len(h.pending))
	})
	h.pending = append(h.pending, t)
	countStatus(n, len(h.pending))
}

func (h *delayTimer) flush(n *engine.Node, count int) {
	released := h.pending[:count]
	h.pending = slices.Clone(h.pending[count:])
	for _, t := range released {
		n.CancelTimer(t.timer)
		t.forward(n)
	}
	countStatus(n, len(h.pending))
}

func (h *delayTimer) reset(n *engine.Node) {
	for _, t := range h.pending {
		n.CancelTimer(t.timer)
		t.discard()
	}
	h.pending = nil
	countStatus(n, 0)
}

func (h *delayTimer) remove(t *timedMsg) {
	if i := slices.Index(h.pending, t); i >= 0 {
		h.pending = slices.Delete(h.pending, i, i+1)
	}
}

func (h *delayTimer) Close(*engine.Node) error {
	for _, t := range h.pending {
		t.discard()
	}
	h.pending = nil
	return nil
}

// Pending reports how many messages are waiting on timers
func (h *delayTimer) Pending() int {
	return len(h.pending)
}

func (h *rateLimit) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	if msg.Has(api.KeyReset) {
		h.reset(n)
		done(nil)
		return
	}
	if h.allowRate {
		if ms, ok := toFloat(msg[api.KeyRate]); ok && ms > 0 {
			h.interval = millis(ms)
		}
	}
	if msg.Has(api.KeyFlush) {
		count := flushCount(msg, len(h.buffer))
		released := h.buffer[:count]
		h.buffer = slices.Clone(h.buffer[count:])
		for _, e := range released {
			e.forward(n)
		}
		countStatus(n, len(h.buffer))
		done(nil)
		return
	}

	e := held{msg: msg, done: done}
	switch {
	case h.drop:
		h.throttle(n, e)
	case !h.ticking:
		e.forward(n)
		h.start(n)
	default:
		h.buffer = append(h.buffer, e)
		if len(h.buffer) > n.MaxKeptMsgs() {
			h.buffer[0].discard()
			h.buffer = slices.Delete(h.buffer, 0, 1)
			if !h.warned {
				h.warned = true
				n.Warn(delayTooMany, "max_kept_msgs", n.MaxKeptMsgs())
			}
		}
		countStatus(n, len(h.buffer))
	}
}

// throttle passes a message when the last one passed at least an
// interval ago. Otherwise it is dropped, or sent on the second output
func (h *rateLimit) throttle(n *engine.Node, e held) {
	if h.ticking {
		if h.outputs == 2 {
			n.SendTo(1, e.msg)
		}
		e.discard()
		return
	}
	e.forward(n)
	h.ticking = true
	h.ticker = n.After(h.interval, func() {
		h.ticking = false
	})
}

func (h *rateLimit) start(n *engine.Node) {
	h.ticking = true
	h.period = h.interval
	h.ticker = n.Every(h.period, func() {
		h.tick(n)
	})
}

func (h *rateLimit) tick(n *engine.Node) {
	if len(h.buffer) == 0 {
		n.CancelTimer(h.ticker)
		h.ticking = false
		h.warned = false
		return
	}
	if h.period != h.interval {
		n.CancelTimer(h.ticker)
		h.start(n)
	}

	e := h.buffer[0]
	h.buffer = slices.Delete(h.buffer, 0, 1)
	e.forward(n)
	if len(h.buffer) == 0 {
		h.warned = false
	}
	countStatus(n, len(h.buffer))
}

func (h *rateLimit) reset(n *engine.Node) {
	if h.ticking {
		n.CancelTimer(h.ticker)
	}
	discardAll(h.buffer)
	h.buffer = nil
	h.ticking = false
	h.warned = false
	h.interval = h.configured
	countStatus(n, 0)
}

func (h *rateLimit) Close(*engine.Node) error {
	discardAll(h.buffer)
	h.buffer = nil
	return nil
}

// Interval reports the spacing currently applied between releases
func (h *rateLimit) Interval() time.Duration {
	return h.interval
}

func (h *topicQueue) Start(n *engine.Node) {
	n.Every(h.interval, func() {
		h.tick(n)
	})
}

func (h *topicQueue) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	switch {
	case msg.Has(api.KeyReset):
		if msg.Has(api.KeyTopic) {
			h.drop(msg.Topic())
		} else {
			h.clear()
		}
		countStatus(n, len(h.topics))
		done(nil)
		return
	case msg.Has(api.KeyFlush):
		h.release(n, flushCount(msg, len(h.topics)))
		done(nil)
		return
	}

	topic := msg.Topic()
	if old, ok := h.byTopic[topic]; ok {
		old.discard()
	} else {
		h.topics = append(h.topics, topic)
	}
	h.byTopic[topic] = held{msg: msg, done: done}

	if len(h.topics) > n.MaxKeptMsgs() {
		h.drop(h.topics[0])
		if !h.warned {
			h.warned = true
			n.Warn(delayTooMany, "max_kept_msgs", n.MaxKeptMsgs())
		}
	}
	countStatus(n, len(h.topics))
}

func (h *topicQueue) tick(n *engine.Node) {
	if h.timed {
		h.release(n, len(h.topics))
		return
	}
	h.release(n, min(1, len(h.topics)))
}

func (h *topicQueue) release(n *engine.Node, count int) {
	topics := h.topics[:count]
	h.topics = slices.Clone(h.topics[count:])
	for _, topic := range topics {
		e := h.byTopic[topic]
		delete(h.byTopic, topic)
		e.forward(n)
	}
	if len(h.topics) == 0 {
		h.warned = false
	}
	if count > 0 {
		countStatus(n, len(h.topics))
	}
}

func (h *topicQueue) drop(topic string) {
	e, ok := h.byTopic[topic]
	if !ok {
		return
	}
	delete(h.byTopic, topic)
	h.topics = slices.DeleteFunc(h.topics, func(t string) bool {
		return t == topic
	})
	e.discard()
}

func (h *topicQueue) clear() {
	for _, topic := range h.topics {
		h.byTopic[topic].discard()
	}
	h.topics = nil
	h.byTopic = map[string]held{}
	h.warned = false
}

func (h *topicQueue) Close(*engine.Node) error {
	h.clear()
	return nil
}

// Topics lists the buffered topics in release order
func (h *topicQueue) Topics() []string {
	return slices.Clone(h.topics)
}
