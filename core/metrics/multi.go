package metrics

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordIngestion forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordIngestion(ev IngestionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordIngestion(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordQuery forwards query events when supported by the sink.
func (m *MultiSink) RecordQuery(ev QueryEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(QueryRecorder); ok {
			if err := rec.RecordQuery(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordOccupancy forwards occupancy events when supported by the sink.
func (m *MultiSink) RecordOccupancy(evs []OccupancyEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(OccupancyRecorder); ok {
			if err := rec.RecordOccupancy(evs); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink holding a connection.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
