package scheduler

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Running:  s.running(),
		Timezone: s.location().String(),
	}
	eng := s.engine
	s.mu.Unlock()

	snap.Jobs = s.Pending()
	if eng != nil {
		snap.Engine = eng.Snapshot()
	}
	return snap
}
