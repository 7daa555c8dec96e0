// Package bridge implements ProxyBridge (§4.5): once a downstream client
// is attached to a session, it rewrites the synthetic clientEid in both
// directions and forwards every other packet verbatim.
package bridge

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
	"golang.org/x/sync/errgroup"

	"github.com/janispritzkau/2b2proxy/internal/codec"
	"github.com/janispritzkau/2b2proxy/internal/proto"
	"github.com/janispritzkau/2b2proxy/internal/replay"
	"github.com/janispritzkau/2b2proxy/internal/world"
)

// Downstream is the narrow write surface a Bridge needs toward the
// attached client connection.
type Downstream interface {
	WriteFrame(id int32, payload []byte) error
}

// DownstreamReader is the narrow read surface for the serverbound
// direction of an attached connection; *codec.FrameReader satisfies it.
type DownstreamReader interface {
	ReadFrame() (codec.Frame, error)
}

// Upstream is the narrow write surface toward the session's upstream
// client.
type Upstream interface {
	WritePacket(id int32, payload []byte) error
}

// clientboundEidPacketIDs carries a leading VarInt eid that's substituted
// selfEid -> clientEid (§4.5's first rewrite table row).
var clientboundEidPacketIDs = map[int32]struct{}{
	proto.CBAnimation:            {},
	proto.CBBlockBreakAnim:       {},
	proto.CBEntityRelativeMove:   {},
	proto.CBEntityLookAndRelMove: {},
	proto.CBEntityLook:           {},
	proto.CBUseBed:             {},
	proto.CBRemoveEntityEffect: {},
	proto.CBEntityHeadLook:     {},
	proto.CBCamera:             {},
	proto.CBEntityVelocity:     {},
	proto.CBEntityEquipment:    {},
	proto.CBEntityProperties:   {},
	proto.CBEntityEffect:       {},
	proto.CBEntityTeleport:     {},
}

type bufferedFrame struct {
	id      int32
	payload []byte
}

// Bridge rewrites and forwards clientbound/serverbound traffic for one
// attached downstream connection (§4.5). It is created fresh on each
// attach; Detach releases it.
type Bridge struct {
	mirror    *world.Mirror
	up        Upstream
	down      Downstream
	selfEid   int32
	clientEid int32

	mu        sync.Mutex
	replaying bool
	pending   deque.Deque
}

// New constructs a Bridge bound to one downstream connection. selfEid is
// the upstream's real entity id for the local player (§6 GLOSSARY).
func New(mirror *world.Mirror, up Upstream, down Downstream, selfEid, clientEid int32) *Bridge {
	return &Bridge{mirror: mirror, up: up, down: down, selfEid: selfEid, clientEid: clientEid}
}

// Attach performs the full synthetic replay (§4.4) and then begins live
// forwarding. Any upstream packet that arrives while the replay is being
// written is buffered and played out afterward, preserving per-session
// ordering per §5's "replay fully emitted before any live packet" rule.
// The caller is responsible for hooking Bridge.HandleClientbound into the
// upstream client's OnFrame before (or as part of) calling Attach.
func (b *Bridge) Attach(respawn bool) error {
	b.mu.Lock()
	b.replaying = true
	b.mu.Unlock()

	b.mirror.RLock()
	packets := replay.Emit(b.mirror, b.clientEid, respawn)
	b.mirror.RUnlock()

	for _, p := range packets {
		if err := b.down.WriteFrame(p.ID, p.Payload); err != nil {
			return err
		}
	}

	b.mu.Lock()
	b.replaying = false
	for b.pending.Len() > 0 {
		f := b.pending.PopFront().(bufferedFrame)
		b.mu.Unlock()
		if err := b.forwardClientbound(f.id, f.payload); err != nil {
			return err
		}
		b.mu.Lock()
	}
	b.mu.Unlock()
	return nil
}

// Serve runs the serverbound pump (reading downstream frames and
// forwarding them upstream via HandleServerbound) and watches upstreamDone
// for the upstream session ending, tearing both directions down together
// on whichever happens first (§5: a dead upstream or a dead downstream
// both end the attachment, never just one side silently). The caller must
// close the downstream connection when upstreamDone fires so the blocked
// ReadFrame call actually returns. The clientbound direction is driven
// separately by HandleClientbound (the upstream client's OnFrame hook),
// since it has no blocking read of its own here.
// intercept, if non-nil, is given every serverbound frame before the
// rewrite table sees it; returning true means it was fully handled (e.g. a
// management chat command) and must not also be forwarded upstream.
func (b *Bridge) Serve(ctx context.Context, down DownstreamReader, upstreamDone <-chan struct{}, intercept func(id int32, payload []byte) bool) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-upstreamDone:
				return nil
			default:
			}
			frame, err := down.ReadFrame()
			if err != nil {
				return err
			}
			if intercept != nil && intercept(frame.ID, frame.Payload) {
				continue
			}
			if err := b.HandleServerbound(frame.ID, frame.Payload); err != nil {
				return err
			}
		}
	})

	group.Go(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-upstreamDone:
			return nil
		}
	})

	return group.Wait()
}

// Detach clears this bridge's buffered state. The caller must also clear
// the upstream client's OnFrame hook and drop its reference to this Bridge
// (§4.5's "remove both directions' listeners, clear conn back to null").
func (b *Bridge) Detach() {
	b.mu.Lock()
	b.pending.Clear()
	b.mu.Unlock()
}

// HandleClientbound is the upstream client's OnFrame hook while this
// Bridge is attached: it either buffers (mid-replay) or immediately
// rewrites and forwards the frame to the downstream connection.
func (b *Bridge) HandleClientbound(id int32, payload []byte) {
	b.mu.Lock()
	if b.replaying {
		b.pending.PushBack(bufferedFrame{id: id, payload: payload})
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	_ = b.forwardClientbound(id, payload)
}

func (b *Bridge) forwardClientbound(id int32, payload []byte) error {
	rewritten := b.rewriteClientbound(id, payload)
	return b.down.WriteFrame(id, rewritten)
}

// rewriteClientbound applies §4.5's clientbound rewrite table.
func (b *Bridge) rewriteClientbound(id int32, payload []byte) []byte {
	switch {
	case id == proto.CBEntityStatus:
		return b.rewriteLeadingInt32Eid(payload)
	case id == proto.CBEntityMetadata:
		return b.rewriteFireworkMetadata(payload)
	case id == proto.CBSetPassengers:
		return b.rewritePassengers(payload)
	default:
		if _, ok := clientboundEidPacketIDs[id]; ok {
			return b.rewriteLeadingVarIntEid(payload)
		}
	}
	return payload
}

func (b *Bridge) remap(eid int32) int32 {
	if eid == b.selfEid {
		return b.clientEid
	}
	return eid
}

func (b *Bridge) unmap(eid int32) int32 {
	if eid == b.clientEid {
		return b.selfEid
	}
	return eid
}

func (b *Bridge) rewriteLeadingVarIntEid(payload []byte) []byte {
	r := codec.NewReader(payload)
	eid := r.VarInt()
	if r.Err() != nil {
		return payload
	}
	rest := r.Remaining()
	w := codec.NewWriter()
	w.VarInt(b.remap(eid))
	w.RawBytes(rest)
	return w.Bytes()
}

func (b *Bridge) rewriteLeadingInt32Eid(payload []byte) []byte {
	r := codec.NewReader(payload)
	eid := r.Int32()
	if r.Err() != nil {
		return payload
	}
	rest := r.Remaining()
	w := codec.NewWriter()
	w.Int32(b.remap(eid))
	w.RawBytes(rest)
	return w.Bytes()
}

// rewriteFireworkMetadata handles §4.5's 0x3C special case: only an
// entity whose cached ObjectType == 76 (firework) carries a boost-target
// eid at metadata index 7 (type VarInt) that needs substitution; every
// other EntityMetadata packet passes through untouched.
func (b *Bridge) rewriteFireworkMetadata(payload []byte) []byte {
	r := codec.NewReader(payload)
	eid := r.VarInt()
	if r.Err() != nil {
		return payload
	}

	b.mirror.RLock()
	e := b.mirror.Entities[eid]
	isFirework := e != nil && e.ObjectType == 76
	b.mirror.RUnlock()
	if !isFirework {
		return payload
	}

	md := world.DecodeMetadataForRewrite(r)
	if r.Err() != nil {
		return payload
	}
	if entry, ok := md[7]; ok && entry.Type == 1 {
		if v, ok := entry.Value.(int32); ok && v == b.selfEid {
			entry.Value = b.clientEid
			md[7] = entry
		}
	}

	w := codec.NewWriter()
	w.VarInt(eid)
	world.EncodeMetadataForRewrite(w, md)
	return w.Bytes()
}

func (b *Bridge) rewritePassengers(payload []byte) []byte {
	r := codec.NewReader(payload)
	vehicle := r.VarInt()
	count := int(r.VarInt())
	if r.Err() != nil {
		return payload
	}
	passengers := make([]int32, count)
	for i := range passengers {
		passengers[i] = r.VarInt()
	}
	if r.Err() != nil {
		return payload
	}
	w := codec.NewWriter()
	w.VarInt(vehicle)
	w.VarInt(int32(len(passengers)))
	for _, p := range passengers {
		w.VarInt(b.remap(p))
	}
	return w.Bytes()
}

// HandleServerbound applies §4.5's serverbound rewrite table to one packet
// from the attached downstream client, forwarding (or dropping) it to the
// upstream connection. The caller must hold no lock; this method takes the
// mirror's write lock itself for the state-tracking cases.
func (b *Bridge) HandleServerbound(id int32, payload []byte) error {
	switch id {
	case proto.SBTeleportConfirm, proto.SBKeepAlive:
		return nil // dropped: proxy maintains its own keep-alive echo

	case proto.SBPlayerPosition:
		r := codec.NewReader(payload)
		x, y, z := r.Float64(), r.Float64(), r.Float64()
		if r.Err() == nil {
			b.mirror.Lock()
			b.mirror.Player.X, b.mirror.Player.Y, b.mirror.Player.Z = x, y, z
			b.mirror.Unlock()
		}
		return b.up.WritePacket(id, payload)

	case proto.SBPlayerPosLook:
		r := codec.NewReader(payload)
		x, y, z := r.Float64(), r.Float64(), r.Float64()
		yaw, pitch := r.Float32(), r.Float32()
		if r.Err() == nil {
			b.mirror.Lock()
			b.mirror.Player.X, b.mirror.Player.Y, b.mirror.Player.Z = x, y, z
			b.mirror.Player.Yaw, b.mirror.Player.Pitch = yaw, pitch
			b.mirror.Unlock()
		}
		return b.up.WritePacket(id, payload)

	case proto.SBPlayerLook:
		r := codec.NewReader(payload)
		yaw, pitch := r.Float32(), r.Float32()
		if r.Err() == nil {
			b.mirror.Lock()
			b.mirror.Player.Yaw, b.mirror.Player.Pitch = yaw, pitch
			b.mirror.Unlock()
		}
		return b.up.WritePacket(id, payload)

	case proto.SBVehicleMove:
		r := codec.NewReader(payload)
		x, y, z := r.Float64(), r.Float64(), r.Float64()
		if r.Err() == nil {
			b.mirror.Lock()
			b.mirror.Player.X, b.mirror.Player.Y, b.mirror.Player.Z = x, y, z
			if ridden := b.mirror.Entities[b.mirror.RidingEid]; b.mirror.HasRiding && ridden != nil {
				ridden.Position = world.Vec3{X: x, Y: y, Z: z}
			}
			b.mirror.Unlock()
		}
		return b.up.WritePacket(id, payload)

	case proto.SBEntityAction:
		r := codec.NewReader(payload)
		eid := r.VarInt()
		rest := r.Remaining()
		w := codec.NewWriter()
		w.VarInt(b.unmap(eid))
		w.RawBytes(rest)
		return b.up.WritePacket(id, w.Bytes())

	case proto.SBHeldItemChange:
		r := codec.NewReader(payload)
		slot := r.Int16()
		if r.Err() == nil {
			b.mirror.Lock()
			b.mirror.HeldItem = int32(slot)
			b.mirror.Unlock()
		}
		return b.up.WritePacket(id, payload)

	default:
		return b.up.WritePacket(id, payload)
	}
}
