package service

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/assessment-archive/internal/models"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
)

// ArchiveExport identifies one archival run.
type ArchiveExport struct {
	Course   *models.Course
	Activity *models.Activity
	Reason   models.ArchiveReason
}

// MetadataEnricher may change the metadata document before it is written.
type MetadataEnricher func(ctx context.Context, export *ArchiveExport, doc *models.ArchiveMetadata) error

type metadataSource interface {
	ListEnrolledUsers(ctx context.Context, courseID int64) ([]models.EnrolledUser, error)
	ListProfileFields(ctx context.Context, userIDs []int64, shortNames []string) ([]models.ProfileFieldValue, error)
	ListGroupMembers(ctx context.Context, courseID int64) ([]models.GroupMember, error)
}

// MetadataConfig configures the metadata document.
type MetadataConfig struct {
	SiteShortName string
	ProfileFields []string
}

// MetadataService builds the JSON document describing a bundle.
type MetadataService struct {
	source    metadataSource
	methods   AssessmentMethodProvider
	cfg       MetadataConfig
	enrichers []MetadataEnricher
	logger    *zap.Logger
}

// NewMetadataService constructs the builder. methods may be nil.
func NewMetadataService(source metadataSource, methods AssessmentMethodProvider, cfg MetadataConfig, logger *zap.Logger) *MetadataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataService{source: source, methods: methods, cfg: cfg, logger: logger}
}

// RegisterEnricher appends an enricher. Enrichers run in registration order.
func (s *MetadataService) RegisterEnricher(enricher MetadataEnricher) {
	if enricher != nil {
		s.enrichers = append(s.enrichers, enricher)
	}
}

// BuildMetadata assembles the document of export at time at.
func (s *MetadataService) BuildMetadata(ctx context.Context, export *ArchiveExport, at time.Time) (*models.ArchiveMetadata, error) {
	course, activity := export.Course, export.Activity
	doc := &models.ArchiveMetadata{
		Date:          at.Format(time.RFC3339),
		DateTimestamp: at.Unix(),
		SiteShortName: s.cfg.SiteShortName,
		ArchiveReason: export.Reason.String(),
		Course: models.MetadataCourse{
			ID:        course.ID,
			Name:      course.FullName,
			ShortName: course.ShortName,
			IDNumber:  course.IDNumber,
		},
		Activity: models.MetadataActivity{
			CMID:       activity.ID,
			InstanceID: activity.InstanceID,
			IDNumber:   activity.IDNumber,
			Type:       activity.ModName,
			Name:       activity.Name,
		},
	}

	if s.methods != nil {
		method, ok, err := s.methods.GetAssessmentMethod(ctx, activity.ID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to resolve assessment method")
		}
		if ok {
			doc.Activity.AssessmentMethod = &method
		}
	}

	var (
		users   []models.EnrolledUser
		members []models.GroupMember
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.source.ListEnrolledUsers(gctx, course.ID)
		return err
	})
	g.Go(func() error {
		var err error
		members, err = s.source.ListGroupMembers(gctx, course.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Internal(err, "failed to load course participants")
	}

	profile, err := s.profileFields(ctx, users)
	if err != nil {
		return nil, err
	}

	groups := make(map[int64][]string)
	for _, m := range members {
		groups[m.UserID] = append(groups[m.UserID], m.Name)
	}

	doc.Users = make([]models.MetadataUser, 0, len(users))
	for _, u := range users {
		fields := nameVariants(u)
		for k, v := range profile[u.ID] {
			fields[k] = v
		}
		userGroups := groups[u.ID]
		if userGroups == nil {
			userGroups = []string{}
		}
		doc.Users = append(doc.Users, models.MetadataUser{
			ID:       u.ID,
			FullName: u.FullName(),
			IDNumber: u.IDNumber,
			Email:    u.Email,
			Fields:   fields,
			Groups:   userGroups,
		})
	}

	for i, enrich := range s.enrichers {
		s.runEnricher(ctx, i, enrich, export, doc)
	}
	return doc, nil
}

// Encode renders the document as indented JSON.
func (s *MetadataService) Encode(doc *models.ArchiveMetadata) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, appErrors.Internal(err, "failed to encode metadata")
	}
	return data, nil
}

func (s *MetadataService) profileFields(ctx context.Context, users []models.EnrolledUser) (map[int64]map[string]string, error) {
	result := make(map[int64]map[string]string)
	if len(s.cfg.ProfileFields) == 0 || len(users) == 0 {
		return result, nil
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	values, err := s.source.ListProfileFields(ctx, ids, s.cfg.ProfileFields)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load profile fields")
	}
	allowed := toSet(s.cfg.ProfileFields)
	for _, v := range values {
		if _, ok := allowed[v.ShortName]; !ok {
			continue
		}
		if result[v.UserID] == nil {
			result[v.UserID] = make(map[string]string)
		}
		result[v.UserID][v.ShortName] = v.Data
	}
	return result, nil
}

func (s *MetadataService) runEnricher(ctx context.Context, idx int, enrich MetadataEnricher, export *ArchiveExport, doc *models.ArchiveMetadata) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("metadata enricher panicked",
				zap.Int("enricher", idx),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	if err := enrich(ctx, export, doc); err != nil {
		s.logger.Warn("metadata enricher failed", zap.Int("enricher", idx), zap.Error(err))
	}
}

func nameVariants(u models.EnrolledUser) map[string]string {
	fields := make(map[string]string)
	for key, value := range map[string]string{
		"firstname":         u.FirstName,
		"lastname":          u.LastName,
		"lastnamephonetic":  u.LastNamePhonetic,
		"firstnamephonetic": u.FirstNamePhonetic,
		"middlename":        u.MiddleName,
		"alternatename":     u.AlternateName,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

func (e *ArchiveExport) String() string {
	if e == nil || e.Activity == nil {
		return "<nil>"
	}
	return fmt.Sprintf("activity %d (%s) reason %s", e.Activity.ID, e.Activity.ModName, e.Reason)
}
