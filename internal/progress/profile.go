package progress

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Register creates the user if it does not exist yet. An existing user keeps
// its stored profile image regardless of profileImage.
func (e *Engine) Register(ctx context.Context, userID string, profileImage *int) (User, bool, error) {
	userID = strings.TrimSpace(userID)
	if err := ValidateUserID(userID); err != nil {
		return User{}, false, err
	}
	image := 0
	if profileImage != nil {
		if err := ValidateProfileImage(*profileImage); err != nil {
			return User{}, false, err
		}
		image = *profileImage
	}

	u, created, err := e.store.RegisterUser(ctx, userID, image, e.now().UTC())
	if err != nil {
		return User{}, false, storageErr("register user", err)
	}
	if created {
		e.logger.Info("user registered", zap.String("user_id", u.ID), zap.Int("profile_image", u.ProfileImage))
	}
	return u, created, nil
}

func (e *Engine) SetProfileImage(ctx context.Context, userID string, image int) error {
	userID = strings.TrimSpace(userID)
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	if err := ValidateProfileImage(image); err != nil {
		return err
	}
	if err := e.store.SetProfileImage(ctx, userID, image); err != nil {
		return storageErr("set profile image", err)
	}
	return nil
}

// Progress lists every stage the user has a record for, ordered by stage code.
func (e *Engine) Progress(ctx context.Context, userID string) (UserProgress, error) {
	userID = strings.TrimSpace(userID)
	if err := ValidateUserID(userID); err != nil {
		return UserProgress{}, err
	}
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return UserProgress{}, storageErr("get user", err)
	}
	recs, err := e.store.ListProgress(ctx, userID)
	if err != nil {
		return UserProgress{}, storageErr("list progress", err)
	}

	stages := make([]StageProgress, 0, len(recs))
	for _, r := range recs {
		st, ok := e.catalog.ByID(r.StageID)
		if !ok {
			e.logger.Warn("progress row references unknown stage", zap.Int("stage_id", r.StageID))
			continue
		}
		sp := StageProgress{
			Code:         st.Code,
			Unlocked:     r.Unlocked,
			Cleared:      r.Cleared,
			PromptLength: r.BestLength,
			ClearTimeMS:  r.BestTimeMS,
		}
		if r.Cleared {
			sp.ClearedAt = r.ImprovedAt
		}
		stages = append(stages, sp)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Code < stages[j].Code })

	return UserProgress{UserID: u.ID, ProfileImage: u.ProfileImage, Stages: stages}, nil
}

// Leaderboard reads both top-10 boards for a stage without writing anything.
func (e *Engine) Leaderboard(ctx context.Context, stageCode string) (Leaderboards, error) {
	stageCode = strings.TrimSpace(stageCode)
	st, ok := e.catalog.Lookup(stageCode)
	if !ok {
		return Leaderboards{}, fmt.Errorf("%w: %s", ErrUnknownStage, stageCode)
	}
	var boards Leaderboards
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		timeTop, err := tx.TopN(ctx, st.ID, ByTime, LeaderboardSize)
		if err != nil {
			return err
		}
		lengthTop, err := tx.TopN(ctx, st.ID, ByLength, LeaderboardSize)
		if err != nil {
			return err
		}
		boards = Leaderboards{PromptTop10: nonNil(lengthTop), TimeTop10: nonNil(timeTop)}
		return nil
	})
	if err != nil {
		return Leaderboards{}, storageErr("leaderboard", err)
	}
	return boards, nil
}

// RecentAttempts returns up to limit of the newest attempts, oldest first.
func (e *Engine) RecentAttempts(ctx context.Context, limit int) ([]AttemptRecord, error) {
	if limit <= 0 {
		return []AttemptRecord{}, nil
	}
	rows, err := e.store.RecentAttempts(ctx, limit)
	if err != nil {
		return nil, storageErr("recent attempts", err)
	}
	if rows == nil {
		rows = []AttemptRecord{}
	}
	return rows, nil
}

// storageErr tags err as a storage failure unless it already carries one of
// the domain sentinels.
func storageErr(op string, err error) error {
	switch {
	case isDomain(err):
		return err
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}
}
