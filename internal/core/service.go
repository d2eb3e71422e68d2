package core

import (
	"sync"
)

// service is a registered service and its instance slots.
//
// opMu serializes operations that change the instance set (start, stop,
// health restarts, recovery) so the health and recovery loops never act on
// the same service at once. mu guards slots for readers such as Status.
type service struct {
	cfg    ServiceConfig
	logDir string

	opMu sync.Mutex

	mu    sync.Mutex
	slots []*Instance // len == cfg.MaxInstances; nil means free
}

func newService(cfg ServiceConfig, logDir string) *service {
	return &service{
		cfg:    cfg,
		logDir: logDir,
		slots:  make([]*Instance, cfg.MaxInstances),
	}
}

// instances returns the occupied slots.
func (s *service) instances() []*Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Instance, 0, len(s.slots))
	for _, inst := range s.slots {
		if inst != nil {
			out = append(out, inst)
		}
	}
	return out
}

// counts returns how many instances are live and how many are running.
func (s *service) counts() (live, running int) {
	for _, inst := range s.instances() {
		st := inst.State()
		if st.Live() {
			live++
		}
		if st == StateRunning {
			running++
		}
	}
	return live, running
}

// reserve places up to n new instances into free slots and marks them
// starting. A slot is free when empty or when its instance stopped or failed.
func (s *service) reserve(n int) []*Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Instance
	for slot := range s.slots {
		if len(out) == n {
			break
		}
		if cur := s.slots[slot]; cur != nil && cur.State().Live() {
			continue
		}
		inst := newInstance(s.cfg, slot, s.logDir)
		inst.setState(StateStarting)
		s.slots[slot] = inst
		out = append(out, inst)
	}
	return out
}

// remove frees inst's slot if it still holds inst.
func (s *service) remove(inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[inst.slot] == inst {
		s.slots[inst.slot] = nil
	}
}

// takeAll empties every slot and returns the instances that were in them.
func (s *service) takeAll() []*Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Instance
	for slot, inst := range s.slots {
		if inst != nil {
			out = append(out, inst)
			s.slots[slot] = nil
		}
	}
	return out
}

func (s *service) infos() []InstanceInfo {
	insts := s.instances()
	out := make([]InstanceInfo, 0, len(insts))
	for _, inst := range insts {
		out = append(out, inst.Info())
	}
	return out
}

func (s *service) find(id string) *Instance {
	for _, inst := range s.instances() {
		if inst.id == id {
			return inst
		}
	}
	return nil
}
