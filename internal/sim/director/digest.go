package director

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

func writeU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeStr(h hash.Hash, tmp *[8]byte, s string) {
	writeU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func writeF32(h hash.Hash, tmp *[8]byte, v float32) {
	writeU64(h, tmp, uint64(math.Float32bits(v)))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Digest is a sha256 over the canonical director state. Two directors that
// made the same decisions from the same start produce the same digest.
func (d *Director) Digest() string {
	return StateDigest(d.Snapshot())
}

// StateDigest hashes st field by field in a fixed order.
func StateDigest(st State) string {
	h := sha256.New()
	var tmp [8]byte

	writeU64(h, &tmp, st.Tick)
	writeF32(h, &tmp, st.Pacing.Heat)
	writeU64(h, &tmp, uint64(st.Pacing.Phase))
	writeU64(h, &tmp, st.Pacing.PhaseEnteredTick)

	writeU64(h, &tmp, uint64(len(st.Cooldowns)))
	for _, e := range st.Cooldowns {
		writeU64(h, &tmp, uint64(e.Key))
		writeStr(h, &tmp, e.Actor)
		writeU64(h, &tmp, e.ReadyAt)
	}

	lf := st.LastFired
	writeU64(h, &tmp, uint64(len(lf.Storylets)))
	for _, e := range lf.Storylets {
		writeU64(h, &tmp, uint64(e.Key))
		writeU64(h, &tmp, e.Tick)
	}
	writeU64(h, &tmp, uint64(len(lf.Domains)))
	for _, e := range lf.Domains {
		writeU64(h, &tmp, uint64(e.Domain))
		writeU64(h, &tmp, e.Tick)
	}
	writeU64(h, &tmp, uint64(len(lf.Tags)))
	for _, e := range lf.Tags {
		writeStr(h, &tmp, e.Tag)
		writeU64(h, &tmp, e.Tick)
	}

	writeU64(h, &tmp, st.QueueSeq)
	writeU64(h, &tmp, uint64(len(st.Queue)))
	for _, e := range st.Queue {
		writeU64(h, &tmp, uint64(e.Key))
		writeU64(h, &tmp, e.ScheduledTick)
		writeU64(h, &tmp, uint64(int64(e.Priority)))
		h.Write([]byte{boolByte(e.Forced), byte(e.Source)})
		writeStr(h, &tmp, e.Origin)
		writeU64(h, &tmp, e.Seq)
	}

	writeU64(h, &tmp, uint64(len(st.Pressures)))
	for _, p := range st.Pressures {
		writeStr(h, &tmp, p.ID)
		writeU64(h, &tmp, uint64(p.Domain))
		writeU64(h, &tmp, uint64(len(p.Tags)))
		for _, t := range p.Tags {
			writeStr(h, &tmp, t)
		}
		writeF32(h, &tmp, p.Severity)
		writeU64(h, &tmp, p.CreatedTick)
		writeU64(h, &tmp, p.ExpiresTick)
		writeU64(h, &tmp, uint64(p.Relief))
		h.Write([]byte{boolByte(p.HasRelief), boolByte(p.ReliefScheduled)})
	}

	writeU64(h, &tmp, uint64(len(st.Milestones)))
	for _, m := range st.Milestones {
		writeStr(h, &tmp, m.ID)
		writeU64(h, &tmp, uint64(m.Domain))
		writeU64(h, &tmp, uint64(len(m.Tags)))
		for _, t := range m.Tags {
			writeStr(h, &tmp, t)
		}
		writeU64(h, &tmp, uint64(int64(m.Progress)))
		writeU64(h, &tmp, uint64(int64(m.Target)))
		writeU64(h, &tmp, m.Deadline)
		writeU64(h, &tmp, uint64(m.Payoff))
		h.Write([]byte{boolByte(m.HasPayoff)})
	}

	writeStr(h, &tmp, st.ConfigVersion)
	return hex.EncodeToString(h.Sum(nil))
}
