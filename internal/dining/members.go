package dining

import (
	"context"
	"errors"
	"strings"
)

type GroupDetail struct {
	Group   Group
	Members []Member
}

type AddMemberInput struct {
	SessionID int64
	Name      string
	Note      *string
	UserID    *int64
}

// CreateGroup attaches a party group to an ACTIVE session that does not have one yet.
func (s *Service) CreateGroup(ctx context.Context, sessionID int64, creatorUserID *int64) (Group, error) {
	var group Group
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		session, err := requireActiveSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if _, err := tx.GroupBySession(ctx, session.ID); err == nil {
			return ConflictError("GROUP_EXISTS", "group already exists for table")
		} else if !errors.Is(err, ErrNoRows) {
			return err
		}

		group = Group{
			TableID:         session.TableID,
			DiningSessionID: session.ID,
			CreatorUserID:   creatorUserID,
			CreatedAt:       s.now(),
		}
		return tx.InsertGroup(ctx, &group)
	})
	return group, err
}

func (s *Service) GetGroup(ctx context.Context, groupID int64) (GroupDetail, error) {
	var detail GroupDetail
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		group, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return notFoundOr(err, "GROUP_NOT_FOUND", "group")
		}
		members, err := tx.ListMembersByGroup(ctx, group.ID)
		if err != nil {
			return err
		}
		detail = GroupDetail{Group: group, Members: members}
		return nil
	})
	return detail, err
}

// AddMember registers a named diner on an ACTIVE session. No account is required.
func (s *Service) AddMember(ctx context.Context, in AddMemberInput) (Member, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Member{}, ValidationError("VALIDATION_ERROR", "Member name is required")
	}
	if in.UserID != nil && *in.UserID <= 0 {
		in.UserID = nil
	}

	var member Member
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		session, err := requireActiveSession(ctx, tx, in.SessionID)
		if err != nil {
			return err
		}

		group, err := tx.GroupBySession(ctx, session.ID)
		if errors.Is(err, ErrNoRows) {
			group = Group{TableID: session.TableID, DiningSessionID: session.ID, CreatorUserID: in.UserID, CreatedAt: s.now()}
			err = tx.InsertGroup(ctx, &group)
		}
		if err != nil {
			return err
		}

		member = Member{
			GroupID:         group.ID,
			DiningSessionID: session.ID,
			UserID:          in.UserID,
			Name:            name,
			JoinedAt:        s.now(),
			Note:            trimmedOrNil(in.Note),
		}
		return tx.InsertMember(ctx, &member)
	})
	return member, err
}

// RemoveMember deletes a diner. The owner and anyone who already ordered stay on record.
func (s *Service) RemoveMember(ctx context.Context, memberID int64) error {
	return s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		member, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return notFoundOr(err, "MEMBER_NOT_FOUND", "member")
		}
		removable, err := canRemoveMember(ctx, tx, member)
		if err != nil {
			return err
		}
		if !removable {
			if member.IsTableAdmin {
				return ConflictError("MEMBER_IS_OWNER", "The table owner cannot be removed")
			}
			return ConflictError("MEMBER_HAS_ITEMS", "Member already has order items")
		}
		return tx.DeleteMember(ctx, member.ID)
	})
}

// RemoveGroupMembers clears every removable member of a group and reports how many went.
func (s *Service) RemoveGroupMembers(ctx context.Context, groupID int64) (int, error) {
	removed := 0
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		group, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return notFoundOr(err, "GROUP_NOT_FOUND", "group")
		}
		members, err := tx.ListMembersByGroup(ctx, group.ID)
		if err != nil {
			return err
		}
		for _, m := range members {
			ok, err := canRemoveMember(ctx, tx, m)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := tx.DeleteMember(ctx, m.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func canRemoveMember(ctx context.Context, tx Tx, m Member) (bool, error) {
	if m.IsTableAdmin {
		return false, nil
	}
	count, err := tx.CountItemsByMember(ctx, m.ID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// AssociateUser binds an authenticated account to an existing diner record.
func (s *Service) AssociateUser(ctx context.Context, memberID int64, userID int64) (Member, error) {
	if userID <= 0 {
		return Member{}, ValidationError("VALIDATION_ERROR", "User ID is required")
	}
	var member Member
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		member, err = tx.GetMember(ctx, memberID)
		if err != nil {
			return notFoundOr(err, "MEMBER_NOT_FOUND", "member")
		}
		if member.UserID != nil && *member.UserID != userID {
			return ConflictError("MEMBER_ALREADY_LINKED", "Member is already linked to another account")
		}
		if err := tx.SetMemberUser(ctx, member.ID, userID); err != nil {
			return err
		}
		member.UserID = &userID
		return nil
	})
	return member, err
}

// resolveMember returns the explicit member when given, otherwise the table admin, otherwise the
// first member of the session.
func resolveMember(ctx context.Context, tx Tx, sessionID int64, memberID *int64) (Member, error) {
	if memberID != nil && *memberID > 0 {
		member, err := tx.GetMember(ctx, *memberID)
		if err != nil {
			return Member{}, notFoundOr(err, "MEMBER_NOT_FOUND", "member")
		}
		if member.DiningSessionID != sessionID {
			return Member{}, ConflictError("MEMBER_NOT_IN_SESSION", "Member does not belong to this session")
		}
		return member, nil
	}

	members, err := tx.ListMembersBySession(ctx, sessionID)
	if err != nil {
		return Member{}, err
	}
	for _, m := range members {
		if m.IsTableAdmin {
			return m, nil
		}
	}
	if len(members) > 0 {
		return members[0], nil
	}
	return Member{}, NotFoundError("MEMBER_NOT_FOUND", "member not found")
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
