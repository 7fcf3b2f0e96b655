// Package bus 实现进程内的主题发布/订阅总线：每个订阅者拥有独立的有界队列，
// 发布者永不因订阅者处理缓慢而阻塞——队列写满时仅丢弃该订阅者的这一条事件。
package bus

import (
	"sync"

	"atrade/metrics"
	"atrade/schema"
)

// DefaultCapacity 是订阅队列的默认容量。
const DefaultCapacity = 1000

// Subscription 是一次订阅的句柄，持有该订阅者专属的有界队列。
type Subscription struct {
	topic string
	ch    chan schema.Event
	bus   *Bus
}

// Events 返回只读的事件接收端，供下游处理循环消费。
func (s *Subscription) Events() <-chan schema.Event {
	return s.ch
}

// Bus 是一个主题键控的进程内发布/订阅总线。
type Bus struct {
	mu       sync.RWMutex
	topics   map[string]map[*Subscription]struct{}
	capacity int
}

// New 创建一个新的事件总线，capacity<=0 时使用 DefaultCapacity。
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		topics:   make(map[string]map[*Subscription]struct{}),
		capacity: capacity,
	}
}

// Subscribe 在给定主题下分配一个有界队列并注册。
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan schema.Event, b.capacity),
		bus:   b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.topics[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.topics[topic] = set
	}
	set[sub] = struct{}{}
	metrics.SetBusSubscribers(topic, len(set))
	return sub
}

// Unsubscribe 注销订阅并排空剩余队列项，使其可被回收。
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if set, ok := b.topics[sub.topic]; ok {
		delete(set, sub)
		metrics.SetBusSubscribers(sub.topic, len(set))
		if len(set) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	b.mu.Unlock()

	for {
		select {
		case <-sub.ch:
		default:
			return
		}
	}
}

// Publish 向给定主题下的每个订阅者非阻塞地投递一次事件。
// 队列写满时丢弃该订阅者的这一条事件并计数，不影响其他订阅者。
func (b *Bus) Publish(topic string, event schema.Event) {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.topics[topic]))
	for sub := range b.topics[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			metrics.RecordBusDrop(topic)
		}
	}
}

// SubscriberCount 返回给定主题当前的订阅者数量，主要用于测试和可观测性。
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
