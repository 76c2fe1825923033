package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/assessment-archive/internal/models"
)

var moduleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// LMSRepository reads course, activity and enrolment data from the learning platform schema.
type LMSRepository struct {
	db     *sqlx.DB
	prefix string
}

// NewLMSRepository constructs the repository. prefix defaults to "mdl_".
func NewLMSRepository(db *sqlx.DB, prefix string) *LMSRepository {
	if prefix == "" {
		prefix = "mdl_"
	}
	return &LMSRepository{db: db, prefix: prefix}
}

func (r *LMSRepository) table(name string) string {
	return r.prefix + name
}

// GetCourse returns a course by id.
func (r *LMSRepository) GetCourse(ctx context.Context, courseID int64) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT id, fullname, shortname, COALESCE(idnumber, '') AS idnumber FROM %s WHERE id = $1`, r.table("course"))
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, courseID); err != nil {
		return nil, err
	}
	return &course, nil
}

// GetActivity returns a course module with its module type and instance name.
func (r *LMSRepository) GetActivity(ctx context.Context, activityID int64) (*models.Activity, error) {
	query := fmt.Sprintf(`SELECT cm.id, cm.course, cm.instance, COALESCE(cm.idnumber, '') AS idnumber, md.name AS modname
	FROM %s cm INNER JOIN %s md ON md.id = cm.module WHERE cm.id = $1`, r.table("course_modules"), r.table("modules"))
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, query, activityID); err != nil {
		return nil, err
	}
	if !moduleNamePattern.MatchString(activity.ModName) {
		return nil, fmt.Errorf("unexpected module name %q", activity.ModName)
	}
	nameQuery := fmt.Sprintf(`SELECT name FROM %s WHERE id = $1`, r.table(activity.ModName))
	if err := r.db.GetContext(ctx, &activity.Name, nameQuery, activity.InstanceID); err != nil {
		return nil, fmt.Errorf("load %s instance name: %w", activity.ModName, err)
	}
	return &activity, nil
}

// ListEnrolledUsers returns every user enrolled in the course.
func (r *LMSRepository) ListEnrolledUsers(ctx context.Context, courseID int64) ([]models.EnrolledUser, error) {
	query := fmt.Sprintf(`SELECT DISTINCT u.id, u.firstname, u.lastname,
       COALESCE(u.firstnamephonetic, '') AS firstnamephonetic, COALESCE(u.lastnamephonetic, '') AS lastnamephonetic,
       COALESCE(u.middlename, '') AS middlename, COALESCE(u.alternatename, '') AS alternatename,
       u.email, COALESCE(u.idnumber, '') AS idnumber
	FROM %s u
	INNER JOIN %s ue ON ue.userid = u.id
	INNER JOIN %s e ON e.id = ue.enrolid
	WHERE e.courseid = $1 AND u.deleted = 0
	ORDER BY u.id ASC`, r.table("user"), r.table("user_enrolments"), r.table("enrol"))
	var users []models.EnrolledUser
	if err := r.db.SelectContext(ctx, &users, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrolled users: %w", err)
	}
	return users, nil
}

// ListProfileFields returns values of the named custom profile fields for the given users.
func (r *LMSRepository) ListProfileFields(ctx context.Context, userIDs []int64, shortNames []string) ([]models.ProfileFieldValue, error) {
	if len(userIDs) == 0 || len(shortNames) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT d.userid, f.shortname, d.data
	FROM %s d INNER JOIN %s f ON f.id = d.fieldid
	WHERE d.userid = ANY($1) AND f.shortname = ANY($2)`, r.table("user_info_data"), r.table("user_info_field"))
	var values []models.ProfileFieldValue
	if err := r.db.SelectContext(ctx, &values, query, pq.Array(userIDs), pq.Array(shortNames)); err != nil {
		return nil, fmt.Errorf("list profile fields: %w", err)
	}
	return values, nil
}

// ListGroupMembers returns group memberships of a course.
func (r *LMSRepository) ListGroupMembers(ctx context.Context, courseID int64) ([]models.GroupMember, error) {
	query := fmt.Sprintf(`SELECT g.id AS groupid, g.name, gm.userid
	FROM %s g INNER JOIN %s gm ON gm.groupid = g.id
	WHERE g.courseid = $1 ORDER BY g.name ASC`, r.table("groups"), r.table("groups_members"))
	var members []models.GroupMember
	if err := r.db.SelectContext(ctx, &members, query, courseID); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return members, nil
}

// ListArchivable returns archivable activities (quiz, assign) with their explicit setting,
// optionally restricted to one course, sorted by course and section.
func (r *LMSRepository) ListArchivable(ctx context.Context, courseID *int64) ([]models.CourseActivity, error) {
	query := fmt.Sprintf(`SELECT cm.id AS cmid, cm.course AS course, md.name AS modname, cs.section AS section,
       COALESCE(cs.sequence, '') AS sequence, s.archive AS archive
	FROM %s cm
	INNER JOIN %s md ON md.id = cm.module
	INNER JOIN %s cs ON cs.id = cm.section
	LEFT JOIN assessment_archive_settings s ON s.activity_id = cm.id
	WHERE md.name = ANY($1)`, r.table("course_modules"), r.table("modules"), r.table("course_sections"))
	args := []interface{}{pq.Array(models.ArchivableModules)}
	if courseID != nil {
		args = append(args, *courseID)
		query += fmt.Sprintf(" AND cm.course = $%d", len(args))
	}
	query += " ORDER BY cm.course ASC, cs.section ASC, cm.id ASC"

	var activities []models.CourseActivity
	if err := r.db.SelectContext(ctx, &activities, query, args...); err != nil {
		return nil, fmt.Errorf("list archivable activities: %w", err)
	}
	return activities, nil
}

// GetAssessmentMethod returns the assessment method classification of an activity, if any.
func (r *LMSRepository) GetAssessmentMethod(ctx context.Context, activityID int64) (string, bool, error) {
	query := fmt.Sprintf(`SELECT method FROM %s WHERE cmid = $1`, r.table("local_assessment_methods"))
	var method sql.NullString
	if err := r.db.GetContext(ctx, &method, query, activityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get assessment method: %w", err)
	}
	if !method.Valid || method.String == "" {
		return "", false, nil
	}
	return method.String, true, nil
}
