package service

import "time"

// Clock hooks for the external test package.

func (m *SessionManager) SetNow(now func() time.Time) { m.now = now }

func (m *MfaManager) SetNow(now func() time.Time) { m.now = now }

func (l *AttemptLimiter) SetNow(now func() time.Time) { l.now = now }
