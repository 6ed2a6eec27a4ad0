package session

import (
	"time"

	"github.com/GriffinCanCode/chatsphere/internal/shared/id"
)

// maxExpired bounds the expired markers kept for a service that never answers.
const maxExpired = 64

// pendingRequest is a prompt awaiting its reply.
type pendingRequest struct {
	id             id.RequestID
	conversationID id.ConversationID
	prompt         string
	sentAt         time.Time
	timer          *time.Timer

	// expired requests keep their place in send order so a late reply
	// without an id is absorbed here instead of sliding onto a newer request
	expired bool
}

// pendingSet tracks outstanding requests by id and in send order.
// Not safe for concurrent use; the manager's mutex guards it.
type pendingSet struct {
	order   []id.RequestID
	byID    map[id.RequestID]*pendingRequest
	live    int
	expired int
}

func newPendingSet() *pendingSet {
	return &pendingSet{byID: make(map[id.RequestID]*pendingRequest)}
}

func (p *pendingSet) add(req *pendingRequest) {
	p.order = append(p.order, req.id)
	p.byID[req.id] = req
	p.live++
}

// len counts requests still awaiting a reply. Expired markers are excluded.
func (p *pendingSet) len() int {
	return p.live
}

// take removes the request, live or expired, and stops its deadline timer.
func (p *pendingSet) take(reqID id.RequestID) (*pendingRequest, bool) {
	req, ok := p.byID[reqID]
	if !ok {
		return nil, false
	}
	delete(p.byID, reqID)
	for i, queued := range p.order {
		if queued == reqID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	if req.expired {
		p.expired--
	} else {
		p.live--
	}
	if req.timer != nil {
		req.timer.Stop()
	}
	return req, true
}

// takeLive removes the request and reports whether it was still awaiting a
// reply. An expired marker is consumed but reported as not found.
func (p *pendingSet) takeLive(reqID id.RequestID) (*pendingRequest, bool) {
	req, ok := p.take(reqID)
	if !ok || req.expired {
		return nil, false
	}
	return req, true
}

// expire turns a live request into a marker that holds its place in send
// order. It reports false when the request is unknown or already expired.
func (p *pendingSet) expire(reqID id.RequestID) (*pendingRequest, bool) {
	req, ok := p.byID[reqID]
	if !ok || req.expired {
		return nil, false
	}
	if req.timer != nil {
		req.timer.Stop()
	}
	req.expired = true
	p.live--
	p.expired++

	for p.expired > maxExpired {
		p.dropOldestExpired()
	}
	return req, true
}

func (p *pendingSet) dropOldestExpired() {
	for _, queued := range p.order {
		if p.byID[queued].expired {
			p.take(queued)
			return
		}
	}
}

// oldest returns the first request in send order without removing it.
func (p *pendingSet) oldest() (*pendingRequest, bool) {
	if len(p.order) == 0 {
		return nil, false
	}
	return p.byID[p.order[0]], true
}

func (p *pendingSet) takeOldest() (*pendingRequest, bool) {
	if len(p.order) == 0 {
		return nil, false
	}
	return p.take(p.order[0])
}

// resolve picks the request a reply belongs to: the one named by reqID, or
// the oldest request in send order when the reply carries no id. The result
// may be an expired marker; callers drop replies that land on one.
func (p *pendingSet) resolve(reqID id.RequestID) (*pendingRequest, bool) {
	if reqID == "" {
		return p.takeOldest()
	}
	return p.take(reqID)
}

// drain removes every request and stops all timers. Only live requests are
// returned.
func (p *pendingSet) drain() []*pendingRequest {
	out := make([]*pendingRequest, 0, p.live)
	for _, reqID := range p.order {
		req := p.byID[reqID]
		if req.timer != nil {
			req.timer.Stop()
		}
		if !req.expired {
			out = append(out, req)
		}
	}
	p.order = nil
	p.byID = make(map[id.RequestID]*pendingRequest)
	p.live = 0
	p.expired = 0
	return out
}

// countFor returns how many live requests target conversation convID.
func (p *pendingSet) countFor(convID id.ConversationID) int {
	n := 0
	for _, req := range p.byID {
		if !req.expired && req.conversationID == convID {
			n++
		}
	}
	return n
}
