package core

import (
	"slices"
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room *domain.Room

	mu     sync.Mutex
	bySID  map[SessionID]MemberSession
	order  []SessionID // join order, used for fan-out
	admin  SessionID
	hasAdm bool
	closed bool
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:  room,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySID)
}

func (r *roomImpl) Admin() (SessionID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.admin, r.hasAdm
}

func (r *roomImpl) IsMember(sid SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bySID[sid]
	return ok
}

func (r *roomImpl) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MemberDTO, 0, len(r.order))
	for _, sid := range r.order {
		u := r.bySID[sid].Meta().User
		out = append(out, MemberDTO{
			ID:       u.ID,
			Username: u.Username,
			Admin:    r.hasAdm && r.admin == sid,
		})
	}
	return out
}

func (r *roomImpl) Join(sid SessionID, ms MemberSession, frames JoinFrames) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return JoinResult{}, ErrRoomClosed
	}
	res := JoinResult{}

	if _, ok := r.bySID[sid]; ok {
		// Repeated create_or_join for the current room: only confirm.
		res.merge(r.sendLocked(sid, frames.Joined))
		return res, nil
	}

	if len(r.bySID) == 0 {
		r.add(sid, ms)
		r.admin, r.hasAdm = sid, true
		res.Created = true
		res.merge(r.sendLocked(sid, frames.Created))
		log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("room created")
		return res, nil
	}

	res.merge(r.fanoutLocked(sid, frames.Join))
	r.add(sid, ms)
	res.merge(r.sendLocked(sid, frames.Joined))
	res.merge(r.fanoutLocked("", frames.Ready))
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Int("members", len(r.bySID)).Msg("member joined")
	return res, nil
}

func (r *roomImpl) Leave(sid SessionID, notice Frame) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.removeLocked(sid)
	if res.WasMember && len(notice) > 0 {
		res.merge(r.fanoutLocked(sid, notice))
	}
	return res
}

func (r *roomImpl) Kick(by, target SessionID, order Frame) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bySID[by]; !ok || !r.hasAdm || r.admin != by {
		return LeaveResult{}, ErrNotAdmin
	}
	ms, ok := r.bySID[target]
	if !ok {
		return LeaveResult{}, ErrNotMember
	}
	res := r.removeLocked(target)
	if err := ms.Signal().TrySend(order); err != nil {
		res.Dropped = append(res.Dropped, target)
	} else {
		res.SendTo++
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("by", string(by)).Str("sid", string(target)).Msg("member kicked")
	return res, nil
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.fanoutLocked(from, data)
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) add(sid SessionID, ms MemberSession) {
	r.bySID[sid] = ms
	r.order = append(r.order, sid)
}

func (r *roomImpl) removeLocked(sid SessionID) LeaveResult {
	if _, ok := r.bySID[sid]; !ok {
		return LeaveResult{}
	}
	delete(r.bySID, sid)
	r.order = slices.DeleteFunc(r.order, func(s SessionID) bool { return s == sid })

	res := LeaveResult{WasMember: true}
	if r.hasAdm && r.admin == sid {
		res.WasAdmin = true
		r.admin, r.hasAdm = "", false
	}
	if len(r.bySID) == 0 {
		res.Empty = true
		r.closed = true
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Bool("admin", res.WasAdmin).Msg("member removed")
	return res
}

// fanoutLocked sends data to every member but skip.
func (r *roomImpl) fanoutLocked(skip SessionID, data Frame) PublishResult {
	res := PublishResult{}
	if len(data) == 0 {
		return res
	}
	for _, sid := range r.order {
		if sid == skip {
			continue
		}
		if err := r.bySID[sid].Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	return res
}

func (r *roomImpl) sendLocked(sid SessionID, data Frame) PublishResult {
	if len(data) == 0 {
		return PublishResult{}
	}
	if err := r.bySID[sid].Signal().TrySend(data); err != nil {
		return PublishResult{Dropped: []SessionID{sid}}
	}
	return PublishResult{SendTo: 1}
}
