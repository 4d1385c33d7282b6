package stratumcore

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"sync/atomic"
)

// ExtranonceCounter hands out the per-connection extranonce1 prefix. Values
// are derived from a fixed instance id so that several pool processes
// sharing one payout address do not collide.
type ExtranonceCounter struct {
	instanceID uint32
	counter    atomic.Int64
}

// NewExtranonceCounter seeds the counter from instanceID. A zero id is
// replaced with a random one.
func NewExtranonceCounter(instanceID uint32) *ExtranonceCounter {
	if instanceID == 0 {
		instanceID = randomInstanceID()
	}
	c := &ExtranonceCounter{instanceID: instanceID}
	// The shift happens in 32 bits, so high instance bits fall off and the
	// seed may come out negative.
	c.counter.Store(int64(int32(instanceID << extranonceInstanceShift)))
	return c
}

func randomInstanceID() uint32 {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic("stratumcore: crypto/rand unavailable: " + err.Error())
		}
		if id := binary.LittleEndian.Uint32(buf[:]); id != 0 {
			return id
		}
	}
}

// Next returns the next extranonce1 as 8 lowercase hex characters.
func (c *ExtranonceCounter) Next() string {
	v := c.counter.Add(1) - 1
	if v < 0 {
		v = -v
	}
	var buf [extranonce1Size]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return hex.EncodeToString(buf[:])
}

// Size is the extranonce1 width in bytes.
func (c *ExtranonceCounter) Size() int {
	return extranonce1Size
}

func (c *ExtranonceCounter) InstanceID() uint32 {
	return c.instanceID
}

// JobCounter issues short hex job ids. It never returns "0".
type JobCounter struct {
	counter atomic.Uint32
}

func NewJobCounter() *JobCounter {
	return &JobCounter{}
}

// Next advances the counter, wrapping to 1 on multiples of 0xffff.
func (c *JobCounter) Next() string {
	for {
		cur := c.counter.Load()
		next := cur + 1
		if next%jobIDWrap == 0 {
			next = 1
		}
		if c.counter.CompareAndSwap(cur, next) {
			return strconv.FormatUint(uint64(next), 16)
		}
	}
}

// Current returns the last issued id without advancing.
func (c *JobCounter) Current() string {
	return strconv.FormatUint(uint64(c.counter.Load()), 16)
}
