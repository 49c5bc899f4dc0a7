package memory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/model"
)

// ErrClosed is returned by a broker after Close.
var ErrClosed = errors.New("memory broker closed")

// DefaultRedeliveryDelay is how long a partition worker waits before
// delivering an uncommitted record again.
const DefaultRedeliveryDelay = 100 * time.Millisecond

// Broker is an in-process partitioned log implementing both
// streamsink.Producer and streamsink.StreamSource.
//
// Every stream has a fixed number of partitions. One consumer group is
// modelled: committed offsets survive across Consume calls, so a record
// left uncommitted by a canceled Consume is delivered again by the next one.
type Broker struct {
	mu              sync.Mutex
	partitions      int
	streams         map[string]*streamLog
	roundRobin      map[string]uint32
	redeliveryDelay time.Duration
	done            chan struct{}
	closed          bool
}

type streamLog struct {
	parts []*partitionLog
}

type partitionLog struct {
	mu        sync.Mutex
	records   []storedRecord
	committed int64
	appended  chan struct{}
}

type storedRecord struct {
	key       string
	value     []byte
	headers   map[string]string
	timestamp time.Time
}

// NewBroker creates a broker whose streams get partitions partitions each
// unless created explicitly with CreateStream.
func NewBroker(partitions int) *Broker {
	if partitions < 1 {
		partitions = 1
	}
	return &Broker{
		partitions:      partitions,
		streams:         map[string]*streamLog{},
		roundRobin:      map[string]uint32{},
		redeliveryDelay: DefaultRedeliveryDelay,
		done:            make(chan struct{}),
	}
}

// SetRedeliveryDelay changes the pause before an uncommitted record is
// delivered again.
func (b *Broker) SetRedeliveryDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.redeliveryDelay = d
}

// CreateStream creates a stream with an explicit partition count.
// It is a no-op for existing streams.
func (b *Broker) CreateStream(name string, partitions int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamLocked(name, partitions)
}

// EnsureStreams creates every missing stream with the default partition count.
func (b *Broker) EnsureStreams(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range names {
		b.streamLocked(name, b.partitions)
	}
}

// Streams returns the names of all existing streams.
func (b *Broker) Streams() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.streams))
	for name := range b.streams {
		names = append(names, name)
	}
	return names
}

func (b *Broker) streamLocked(name string, partitions int) *streamLog {
	if s, ok := b.streams[name]; ok {
		return s
	}
	if partitions < 1 {
		partitions = 1
	}
	s := &streamLog{parts: make([]*partitionLog, partitions)}
	for i := range s.parts {
		s.parts[i] = &partitionLog{appended: make(chan struct{})}
	}
	b.streams[name] = s
	return s
}

// Produce appends rec to its stream. The partition is the hint modulo the
// partition count, else the FNV-1a hash of the key, else round robin.
func (b *Broker) Produce(ctx context.Context, rec streamsink.ProducerRecord) (int32, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, 0, ErrClosed
	}
	if rec.Stream == "" {
		b.mu.Unlock()
		return 0, 0, fmt.Errorf("stream is required")
	}
	s := b.streamLocked(rec.Stream, b.partitions)
	partition := b.choosePartitionLocked(rec, len(s.parts))
	b.mu.Unlock()

	headers := make(map[string]string, len(rec.Headers))
	for k, v := range rec.Headers {
		headers[k] = v
	}
	offset := s.parts[partition].append(storedRecord{
		key:       rec.Key,
		value:     append([]byte(nil), rec.Value...),
		headers:   headers,
		timestamp: time.Now(),
	})
	return partition, offset, nil
}

func (b *Broker) choosePartitionLocked(rec streamsink.ProducerRecord, n int) int32 {
	switch {
	case rec.Partition >= 0:
		return rec.Partition % int32(n)
	case rec.Key != "":
		h := fnv.New32a()
		_, _ = h.Write([]byte(rec.Key))
		return int32(h.Sum32() % uint32(n))
	default:
		next := b.roundRobin[rec.Stream]
		b.roundRobin[rec.Stream] = next + 1
		return int32(next % uint32(n))
	}
}

// Consume delivers records of streams until ctx is canceled or the broker is
// closed. Each partition is served by its own goroutine.
func (b *Broker) Consume(ctx context.Context, streams []string, fn streamsink.DeliveryFunc) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	type work struct {
		stream    string
		partition int32
		log       *partitionLog
	}
	var jobs []work
	for _, name := range streams {
		s := b.streamLocked(name, b.partitions)
		for i, p := range s.parts {
			jobs = append(jobs, work{stream: name, partition: int32(i), log: p})
		}
	}
	redelivery := b.redeliveryDelay
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j work) {
			defer wg.Done()
			b.runPartition(ctx, j.stream, j.partition, j.log, fn, redelivery)
		}(j)
	}
	wg.Wait()
	return nil
}

func (b *Broker) runPartition(ctx context.Context, stream string, partition int32, p *partitionLog, fn streamsink.DeliveryFunc, redelivery time.Duration) {
	for {
		rec, offset, appended, ok := p.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case <-appended:
				continue
			}
		}
		if ctx.Err() != nil {
			return
		}

		env := model.NewEnvelope(stream, rec.key, partition, offset, append([]byte(nil), rec.value...))
		for k, v := range rec.headers {
			env.SetHeader(k, v)
		}
		env.Timestamp = rec.timestamp

		if err := fn(ctx, env); err != nil {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case <-time.After(redelivery):
				continue
			}
		}
		p.commit(offset)
	}
}

// Close stops all partition workers and rejects further produce calls.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

// Records returns a snapshot of every record in stream, partition by partition.
func (b *Broker) Records(stream string) []*model.Envelope {
	b.mu.Lock()
	s, ok := b.streams[stream]
	b.mu.Unlock()
	if !ok {
		return nil
	}

	var out []*model.Envelope
	for i, p := range s.parts {
		p.mu.Lock()
		for offset, rec := range p.records {
			env := model.NewEnvelope(stream, rec.key, int32(i), int64(offset), append([]byte(nil), rec.value...))
			for k, v := range rec.headers {
				env.SetHeader(k, v)
			}
			env.Timestamp = rec.timestamp
			out = append(out, env)
		}
		p.mu.Unlock()
	}
	return out
}

// Committed returns the next offset to be delivered for a partition.
func (b *Broker) Committed(stream string, partition int32) int64 {
	b.mu.Lock()
	s, ok := b.streams[stream]
	b.mu.Unlock()
	if !ok || int(partition) >= len(s.parts) || partition < 0 {
		return 0
	}
	p := s.parts[partition]
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.committed
}

// Lag returns how many records of stream are not committed yet.
func (b *Broker) Lag(stream string) int64 {
	b.mu.Lock()
	s, ok := b.streams[stream]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	var lag int64
	for _, p := range s.parts {
		p.mu.Lock()
		lag += int64(len(p.records)) - p.committed
		p.mu.Unlock()
	}
	return lag
}

func (p *partitionLog) append(rec storedRecord) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	close(p.appended)
	p.appended = make(chan struct{})
	return int64(len(p.records) - 1)
}

// next returns the first uncommitted record, or the channel closed on the
// next append when the partition is drained.
func (p *partitionLog) next() (storedRecord, int64, <-chan struct{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.committed < int64(len(p.records)) {
		return p.records[p.committed], p.committed, nil, true
	}
	return storedRecord{}, 0, p.appended, false
}

func (p *partitionLog) commit(offset int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if offset == p.committed {
		p.committed++
	}
}
