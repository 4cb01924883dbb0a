package pump

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"

	"github.com/jittakal/membuf/internal/errors"
	"github.com/jittakal/membuf/pkg/buffer"
)

// headerSize is the producer id and sequence number carried by every
// generated entry. Generated entries are never shorter.
const headerSize = 12

// encodeEntry stamps dst with the producer id and sequence number and fills
// the rest with bytes derived from seq.
func encodeEntry(dst []byte, producer uint32, seq uint64) {
	binary.BigEndian.PutUint32(dst[0:4], producer)
	binary.BigEndian.PutUint64(dst[4:headerSize], seq)
	for i := headerSize; i < len(dst); i++ {
		dst[i] = byte(seq + uint64(i))
	}
}

// decodeEntry reverses encodeEntry. It reports false if the entry is too
// short or its filler does not match.
func decodeEntry(data []byte) (uint32, uint64, bool) {
	if len(data) < headerSize {
		return 0, 0, false
	}
	producer := binary.BigEndian.Uint32(data[0:4])
	seq := binary.BigEndian.Uint64(data[4:headerSize])
	for i := headerSize; i < len(data); i++ {
		if data[i] != byte(seq+uint64(i)) {
			return producer, seq, false
		}
	}
	return producer, seq, true
}

// RunEntries drives an entry buffer and closes it once producers are done.
func (p *Pump) RunEntries(ctx context.Context, buf buffer.EntryBuffer) (Result, error) {
	name := buf.Stats().Name

	produce := p.produceEntries(buf, name)
	verify := true
	if p.cfg.Source != nil {
		produce = p.produceLines(buf, name, newLineSource(p.cfg.Source))
		verify = false
	}
	return p.run(ctx, name, buf.Close, produce, p.consumeEntries(buf, name, verify))
}

func (p *Pump) produceEntries(buf buffer.EntryBuffer, name string) worker {
	return func(ctx context.Context, id int) error {
		r := p.rng(id)
		for seq := uint64(0); !p.quotaReached(int(seq)); seq++ {
			if !p.wait(ctx) {
				return nil
			}

			data := make([]byte, max(headerSize, p.size(r)))
			encodeEntry(data, uint32(id), seq)
			if err := buf.AppendEntry(ctx, data); err != nil {
				if stopped(ctx, err) {
					return nil
				}
				return err
			}
			p.producedOne(name, len(data))
		}
		return nil
	}
}

func (p *Pump) produceLines(buf buffer.EntryBuffer, name string, src *lineSource) worker {
	return func(ctx context.Context, id int) error {
		for done := 0; !p.quotaReached(done); done++ {
			if !p.wait(ctx) {
				return nil
			}

			line, ok, err := src.next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if err := buf.AppendEntry(ctx, line); err != nil {
				if stopped(ctx, err) {
					return nil
				}
				return err
			}
			p.producedOne(name, len(line))
		}
		return nil
	}
}

func (p *Pump) consumeEntries(buf buffer.EntryBuffer, name string, verify bool) worker {
	return func(ctx context.Context, id int) error {
		last := make(map[uint32]uint64)
		for {
			data, ok, err := buf.GetNextEntry(ctx, p.cfg.PollTimeout)
			if errors.Is(err, errors.ErrBufferClosed) {
				return nil
			}
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			p.consumedOne(name, len(data))

			if !verify {
				continue
			}
			producer, seq, valid := decodeEntry(data)
			if !valid {
				p.orderViolations.Add(1)
				p.metrics.IncOrderViolations(name)
				p.logger.Error("payload corrupted", "buffer", name, "consumer", id, "length", len(data))
				continue
			}
			if prev, seen := last[producer]; seen && seq <= prev {
				p.violation(name, producer, prev, seq)
			}
			last[producer] = seq
		}
	}
}

// lineSource hands out the lines of a reader to several producers.
type lineSource struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
}

func newLineSource(r io.Reader) *lineSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &lineSource{scanner: scanner}
}

func (s *lineSource) next() ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scanner.Scan() {
		return nil, false, s.scanner.Err()
	}
	return bytes.Clone(s.scanner.Bytes()), true, nil
}
