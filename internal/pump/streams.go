package pump

import (
	"context"

	"github.com/jittakal/membuf/internal/errors"
	"github.com/jittakal/membuf/pkg/buffer"
)

// readBatch is how many values a streamy consumer asks for at once.
const readBatch = 256

// sequenceBits is the width of the per-producer sequence inside a long.
const sequenceBits = 40

func encodeLong(producer uint32, seq uint64) int64 {
	return int64(uint64(producer)<<sequenceBits | seq&(1<<sequenceBits-1))
}

func decodeLong(v int64) (uint32, uint64) {
	return uint32(uint64(v) >> sequenceBits), uint64(v) & (1<<sequenceBits - 1)
}

// RunBytes drives a streamy byte buffer. Append boundaries are not visible
// to consumers, so only volume is checked.
func (p *Pump) RunBytes(ctx context.Context, buf buffer.StreamyBuffer[byte]) (Result, error) {
	name := buf.Stats().Name

	produce := func(ctx context.Context, id int) error {
		r := p.rng(id)
		for done := 0; !p.quotaReached(done); done++ {
			if !p.wait(ctx) {
				return nil
			}

			chunk := make([]byte, max(1, p.size(r)))
			for i := range chunk {
				chunk[i] = byte(id + i)
			}
			if err := buf.Append(ctx, chunk); err != nil {
				if stopped(ctx, err) {
					return nil
				}
				return err
			}
			p.producedOne(name, len(chunk))
		}
		return nil
	}

	consume := func(ctx context.Context, id int) error {
		dst := make([]byte, readBatch)
		for {
			n, err := buf.ReadTimeout(ctx, p.cfg.PollTimeout, dst)
			if errors.Is(err, errors.ErrBufferClosed) {
				return nil
			}
			if err != nil {
				return err
			}
			if n > 0 {
				p.consumedOne(name, n)
			}
		}
	}

	return p.run(ctx, name, buf.Close, produce, consume)
}

// RunLongs drives a streamy int64 buffer. Every value carries its producer
// and sequence number, so consumers check per-producer ordering.
func (p *Pump) RunLongs(ctx context.Context, buf buffer.StreamyBuffer[int64]) (Result, error) {
	name := buf.Stats().Name

	produce := func(ctx context.Context, id int) error {
		r := p.rng(id)
		var seq uint64
		for done := 0; !p.quotaReached(done); done++ {
			if !p.wait(ctx) {
				return nil
			}

			chunk := make([]int64, max(1, p.size(r)))
			for i := range chunk {
				chunk[i] = encodeLong(uint32(id), seq+uint64(i))
			}
			if err := buf.Append(ctx, chunk); err != nil {
				if stopped(ctx, err) {
					return nil
				}
				return err
			}
			seq += uint64(len(chunk))
			p.producedOne(name, len(chunk))
		}
		return nil
	}

	consume := func(ctx context.Context, id int) error {
		dst := make([]int64, readBatch)
		last := make(map[uint32]uint64)
		for {
			n, err := buf.ReadTimeout(ctx, p.cfg.PollTimeout, dst)
			if errors.Is(err, errors.ErrBufferClosed) {
				return nil
			}
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			p.consumedOne(name, n)

			for _, v := range dst[:n] {
				producer, seq := decodeLong(v)
				if prev, seen := last[producer]; seen && seq <= prev {
					p.violation(name, producer, prev, seq)
				}
				last[producer] = seq
			}
		}
	}

	return p.run(ctx, name, buf.Close, produce, consume)
}
