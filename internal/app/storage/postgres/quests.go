package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/quest"
)

const questColumns = `id, title, description, objectives, points, badge_id, starts_at, ends_at, active, created_at, updated_at`

type questRow struct {
	quest.Quest
	Objs jsonColumn[[]quest.Objective] `db:"objectives"`
}

func (r questRow) toQuest() quest.Quest {
	q := r.Quest
	q.Objectives = r.Objs.V
	return q
}

func newQuestRow(q quest.Quest) questRow {
	objs := q.Objectives
	if objs == nil {
		objs = []quest.Objective{}
	}
	return questRow{Quest: q, Objs: jsonColumn[[]quest.Objective]{V: objs}}
}

// --- QuestStore --------------------------------------------------------------

func (s *Store) CreateQuest(ctx context.Context, q quest.Quest) (quest.Quest, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	stamp(&q.CreatedAt, &q.UpdatedAt, s.now())

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO quests (`+questColumns+`)
		VALUES (:id, :title, :description, :objectives, :points, :badge_id, :starts_at, :ends_at, :active, :created_at, :updated_at)
	`, newQuestRow(q))
	if err != nil {
		return quest.Quest{}, mapErr(err, "quest", q.ID)
	}
	return q, nil
}

func (s *Store) UpdateQuest(ctx context.Context, q quest.Quest) (quest.Quest, error) {
	q.UpdatedAt = s.now()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE quests
		SET title = :title, description = :description, objectives = :objectives, points = :points,
			badge_id = :badge_id, starts_at = :starts_at, ends_at = :ends_at, active = :active, updated_at = :updated_at
		WHERE id = :id
	`, newQuestRow(q))
	if err != nil {
		return quest.Quest{}, mapErr(err, "quest", q.ID)
	}
	if err := mustAffect(res, "quest", q.ID); err != nil {
		return quest.Quest{}, err
	}
	return s.GetQuest(ctx, q.ID)
}

func (s *Store) GetQuest(ctx context.Context, id string) (quest.Quest, error) {
	var row questRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+questColumns+` FROM quests WHERE id = $1`, id); err != nil {
		return quest.Quest{}, mapErr(err, "quest", id)
	}
	return row.toQuest(), nil
}

func (s *Store) ListQuests(ctx context.Context, activeOnly bool) ([]quest.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY created_at DESC`

	rows := []questRow{}
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	result := make([]quest.Quest, len(rows))
	for i, r := range rows {
		result[i] = r.toQuest()
	}
	return result, nil
}

// DeleteQuest fails with ErrConflict while participations reference the
// quest.
func (s *Store) DeleteQuest(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quests WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "quest", id)
	}
	return mustAffect(res, "quest", id)
}

const participationColumns = `id, user_id, quest_id, progress, percent, status, joined_at, completed_at, updated_at`

type participationRow struct {
	quest.Participation
	Prog jsonColumn[[]quest.ObjectiveProgress] `db:"progress"`
}

func (r participationRow) toParticipation() quest.Participation {
	p := r.Participation
	p.Progress = r.Prog.V
	return p
}

func newParticipationRow(p quest.Participation) participationRow {
	prog := p.Progress
	if prog == nil {
		prog = []quest.ObjectiveProgress{}
	}
	return participationRow{Participation: p, Prog: jsonColumn[[]quest.ObjectiveProgress]{V: prog}}
}

func (s *Store) CreateParticipation(ctx context.Context, p quest.Participation) (quest.Participation, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO quest_participations (`+participationColumns+`)
		VALUES (:id, :user_id, :quest_id, :progress, :percent, :status, :joined_at, :completed_at, :updated_at)
	`, newParticipationRow(p))
	if err != nil {
		return quest.Participation{}, mapErr(err, "participation", p.UserID+"/"+p.QuestID)
	}
	return p, nil
}

func (s *Store) UpdateParticipation(ctx context.Context, p quest.Participation) (quest.Participation, error) {
	p.UpdatedAt = s.now()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE quest_participations
		SET progress = :progress, percent = :percent, status = :status, completed_at = :completed_at, updated_at = :updated_at
		WHERE id = :id
	`, newParticipationRow(p))
	if err != nil {
		return quest.Participation{}, mapErr(err, "participation", p.ID)
	}
	if err := mustAffect(res, "participation", p.ID); err != nil {
		return quest.Participation{}, err
	}
	return s.GetParticipation(ctx, p.UserID, p.QuestID)
}

func (s *Store) GetParticipation(ctx context.Context, userID, questID string) (quest.Participation, error) {
	var row participationRow
	err := s.db.GetContext(ctx, &row, `SELECT `+participationColumns+`
		FROM quest_participations WHERE user_id = $1 AND quest_id = $2`, userID, questID)
	if err != nil {
		return quest.Participation{}, mapErr(err, "participation", userID+"/"+questID)
	}
	return row.toParticipation(), nil
}

func (s *Store) ListParticipations(ctx context.Context, userID string, status quest.ParticipationStatus) ([]quest.Participation, error) {
	w := where{}
	w.add("user_id = ?", userID)
	return s.listParticipations(ctx, w, status)
}

func (s *Store) ListQuestParticipations(ctx context.Context, questID string, status quest.ParticipationStatus) ([]quest.Participation, error) {
	w := where{}
	w.add("quest_id = ?", questID)
	return s.listParticipations(ctx, w, status)
}

func (s *Store) listParticipations(ctx context.Context, w where, status quest.ParticipationStatus) ([]quest.Participation, error) {
	if status != "" {
		w.add("status = ?", status)
	}
	rows := []participationRow{}
	query := `SELECT ` + participationColumns + ` FROM quest_participations` + w.String() + ` ORDER BY joined_at DESC`
	if err := s.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	result := make([]quest.Participation, len(rows))
	for i, r := range rows {
		result[i] = r.toParticipation()
	}
	return result, nil
}
