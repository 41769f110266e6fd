package dining

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultOwnerName = "Owner"

type StartSessionInput struct {
	TableID       int64
	ActingAdminID int64
	OwnerName     string
}

type StartSessionResult struct {
	Session   DiningSession
	Group     Group
	Owner     Member
	QRPayload string
	QRImage   string
}

type EndSessionInput struct {
	SessionID     int64
	TableID       int64
	ActingAdminID int64
}

type SessionDetail struct {
	Session  DiningSession
	Table    Table
	Members  []Member
	Duration *time.Duration
}

type ActiveSession struct {
	Session      DiningSession
	Table        Table
	PrimaryGroup *Group
	Members      []Member
}

// StartSession opens a seating on a free table. The table row lock plus the unique ACTIVE index
// keep two concurrent starts from both succeeding.
func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (StartSessionResult, error) {
	if in.TableID <= 0 {
		return StartSessionResult{}, ValidationError("INVALID_TABLE_ID", "Table ID is required")
	}
	if in.ActingAdminID <= 0 {
		return StartSessionResult{}, ValidationError("ADMIN_REQUIRED", "An admin must open the session")
	}
	ownerName := strings.TrimSpace(in.OwnerName)
	if ownerName == "" {
		ownerName = defaultOwnerName
	}

	var result StartSessionResult
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		table, err := tx.LockTable(ctx, in.TableID)
		if err != nil {
			return notFoundOr(err, "TABLE_NOT_FOUND", "table")
		}
		if _, err := tx.ActiveSessionByTable(ctx, table.ID); err == nil {
			return ConflictError("TABLE_OCCUPIED", "Table already has an active session")
		} else if !errors.Is(err, ErrNoRows) {
			return err
		}

		now := s.now()
		session := DiningSession{
			TableID:         table.ID,
			OpenedByAdminID: in.ActingAdminID,
			QRToken:         s.newToken(),
			Status:          SessionActive,
			StartedAt:       now,
			Total:           decimal.Zero,
		}
		if err := tx.InsertSession(ctx, &session); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return ConflictError("TABLE_OCCUPIED", "Table already has an active session")
			}
			return err
		}

		group := Group{TableID: table.ID, DiningSessionID: session.ID, CreatedAt: now}
		if err := tx.InsertGroup(ctx, &group); err != nil {
			return err
		}

		owner := Member{
			GroupID:         group.ID,
			DiningSessionID: session.ID,
			Name:            ownerName,
			IsTableAdmin:    true,
			JoinedAt:        now,
		}
		if err := tx.InsertMember(ctx, &owner); err != nil {
			return err
		}

		result = StartSessionResult{Session: session, Group: group, Owner: owner, QRPayload: s.sessionURL(session.QRToken)}
		return nil
	})
	if err != nil {
		return StartSessionResult{}, err
	}
	result.QRImage = s.renderQR(ctx, "sessions/"+result.Session.QRToken, result.QRPayload)

	s.logger.Info("dining session started",
		zap.Int64("sessionId", result.Session.ID),
		zap.Int64("tableId", result.Session.TableID),
		zap.Int64("adminId", in.ActingAdminID),
	)
	s.publish(ctx, Event{
		Type:       EventSessionStarted,
		SessionID:  result.Session.ID,
		TableID:    result.Session.TableID,
		Status:     string(SessionActive),
		OccurredAt: result.Session.StartedAt,
	})
	return result, nil
}

func (s *Service) sessionURL(token string) string {
	return s.clientBaseURL + "/session/" + token
}

// EndSession closes the ACTIVE session identified by SessionID, or by TableID when SessionID is 0.
func (s *Service) EndSession(ctx context.Context, in EndSessionInput) (DiningSession, error) {
	if in.ActingAdminID <= 0 {
		return DiningSession{}, ValidationError("ADMIN_REQUIRED", "Only an admin can end a session")
	}
	if in.SessionID <= 0 && in.TableID <= 0 {
		return DiningSession{}, ValidationError("VALIDATION_ERROR", "Session ID or table ID is required")
	}

	var ended DiningSession
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		sessionID := in.SessionID
		if sessionID <= 0 {
			active, err := tx.ActiveSessionByTable(ctx, in.TableID)
			if err != nil {
				return notFoundOr(err, "SESSION_NOT_FOUND", "active session")
			}
			sessionID = active.ID
		}

		session, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return notFoundOr(err, "SESSION_NOT_FOUND", "active session")
		}
		if session.Status != SessionActive {
			return NotFoundError("SESSION_NOT_FOUND", "active session not found")
		}

		ended, err = s.completeSession(ctx, tx, session)
		return err
	})
	if err != nil {
		return DiningSession{}, err
	}

	s.logger.Info("dining session ended",
		zap.Int64("sessionId", ended.ID),
		zap.Int64("adminId", in.ActingAdminID),
		zap.String("total", ended.Total.StringFixed(2)),
	)
	s.publishCompleted(ctx, ended)
	return ended, nil
}

// completeSession aggregates bills and members onto a locked ACTIVE session and closes its orders.
func (s *Service) completeSession(ctx context.Context, tx Tx, session DiningSession) (DiningSession, error) {
	bills, err := tx.ListBillsBySession(ctx, session.ID)
	if err != nil {
		return DiningSession{}, err
	}
	total := decimal.Zero
	for _, b := range bills {
		total = total.Add(b.Total)
	}

	members, err := tx.ListMembersBySession(ctx, session.ID)
	if err != nil {
		return DiningSession{}, err
	}
	distinct := make(map[int64]struct{}, len(members))
	for _, m := range members {
		distinct[m.ID] = struct{}{}
	}

	endedAt := s.now()
	if err := tx.CompleteSession(ctx, session.ID, endedAt, int32(len(distinct)), total); err != nil {
		return DiningSession{}, err
	}
	if _, err := tx.CloseOrdersBySession(ctx, session.ID); err != nil {
		return DiningSession{}, err
	}

	session.Status = SessionCompleted
	session.EndedAt = &endedAt
	session.TotalCustomers = int32(len(distinct))
	session.Total = total
	return session, nil
}

func (s *Service) publishCompleted(ctx context.Context, session DiningSession) {
	occurred := s.now()
	if session.EndedAt != nil {
		occurred = *session.EndedAt
	}
	s.publish(ctx, Event{
		Type:      EventSessionCompleted,
		SessionID: session.ID,
		TableID:   session.TableID,
		Status:    string(SessionCompleted),
		Data: map[string]any{
			"total":          session.Total.StringFixed(2),
			"totalCustomers": session.TotalCustomers,
		},
		OccurredAt: occurred,
	})
}

func (s *Service) GetActiveSessions(ctx context.Context) ([]ActiveSession, error) {
	var out []ActiveSession
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		sessions, err := tx.ListActiveSessions(ctx)
		if err != nil {
			return err
		}
		out = make([]ActiveSession, 0, len(sessions))
		for _, sess := range sessions {
			view := ActiveSession{Session: sess, Members: []Member{}}
			if view.Table, err = tx.GetTable(ctx, sess.TableID); err != nil {
				return err
			}

			members, err := tx.ListMembersBySession(ctx, sess.ID)
			if err != nil {
				return err
			}
			if latest, ok := latestJoined(members); ok {
				group, err := tx.GetGroup(ctx, latest.GroupID)
				if err != nil {
					return err
				}
				view.PrimaryGroup = &group
				if view.Members, err = tx.ListMembersByGroup(ctx, group.ID); err != nil {
					return err
				}
			}
			out = append(out, view)
		}
		return nil
	})
	return out, err
}

func latestJoined(members []Member) (Member, bool) {
	if len(members) == 0 {
		return Member{}, false
	}
	latest := members[0]
	for _, m := range members[1:] {
		if m.JoinedAt.After(latest.JoinedAt) || m.JoinedAt.Equal(latest.JoinedAt) && m.ID > latest.ID {
			latest = m
		}
	}
	return latest, true
}

func (s *Service) GetSession(ctx context.Context, sessionID int64) (SessionDetail, error) {
	var detail SessionDetail
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return notFoundOr(err, "SESSION_NOT_FOUND", "session")
		}
		detail, err = loadSessionDetail(ctx, tx, session)
		return err
	})
	return detail, err
}

func (s *Service) GetSessionByToken(ctx context.Context, token string) (SessionDetail, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SessionDetail{}, ValidationError("VALIDATION_ERROR", "Session token is required")
	}
	var detail SessionDetail
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		session, err := tx.GetSessionByToken(ctx, token)
		if err != nil {
			return notFoundOr(err, "SESSION_NOT_FOUND", "session")
		}
		detail, err = loadSessionDetail(ctx, tx, session)
		return err
	})
	return detail, err
}

func loadSessionDetail(ctx context.Context, tx Tx, session DiningSession) (SessionDetail, error) {
	table, err := tx.GetTable(ctx, session.TableID)
	if err != nil {
		return SessionDetail{}, err
	}
	members, err := tx.ListMembersBySession(ctx, session.ID)
	if err != nil {
		return SessionDetail{}, err
	}
	return SessionDetail{Session: session, Table: table, Members: members, Duration: session.Duration()}, nil
}

// requireActiveSession loads a session and fails with Conflict unless it is ACTIVE.
func requireActiveSession(ctx context.Context, tx Tx, sessionID int64) (DiningSession, error) {
	session, err := tx.GetSession(ctx, sessionID)
	if err != nil {
		return DiningSession{}, notFoundOr(err, "SESSION_NOT_FOUND", "session")
	}
	if session.Status != SessionActive {
		return DiningSession{}, ConflictError("SESSION_CLOSED", "Session is no longer active")
	}
	return session, nil
}
