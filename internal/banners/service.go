package banners

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultDocumentKey is the store key holding the config document.
	DefaultDocumentKey  = "banner-config"
	defaultStoreTimeout = 5 * time.Second
	defaultAssetTimeout = 30 * time.Second
)

var (
	errMissingStore     = errors.New("config store is required")
	errMissingAssetHost = errors.New("asset host is required")
	errMissingActive    = errors.New("active flag is required")
	errEmptyUpload      = errors.New("upload is empty")
	errMissingAssetURL  = errors.New("asset host returned no url or id")
	noOpLogger          = zap.NewNop()
)

// Upload is the payload handed to the asset host.
type Upload struct {
	Data        []byte
	FileName    string
	ContentType string
}

// Asset identifies a stored image: URL is its public address, ID its host reference.
type Asset struct {
	URL string
	ID  string
}

// AssetHost stores and releases banner images.
// Delete returns ErrAssetNotFound when the asset is already gone.
type AssetHost interface {
	Upload(ctx context.Context, upload Upload) (Asset, error)
	Delete(ctx context.Context, assetID string) error
}

// ServiceConfig describes the registry dependencies.
type ServiceConfig struct {
	Store             store.DocumentStore
	DocumentKey       string
	Assets            AssetHost
	Publisher         Publisher
	IDProvider        IDProvider
	Clock             func() time.Time
	Location          *time.Location
	StoreTimeout      time.Duration
	AssetTimeout      time.Duration
	CompensateOrphans bool
	Logger            *zap.Logger
}

// Service is the banner registry: it reads the config document, applies the
// selection or merge rules and writes the whole document back.
type Service struct {
	store             store.DocumentStore
	key               string
	assets            AssetHost
	publisher         Publisher
	idProvider        IDProvider
	clock             func() time.Time
	location          *time.Location
	storeTimeout      time.Duration
	assetTimeout      time.Duration
	compensateOrphans bool
	logger            *zap.Logger
}

// NewService validates cfg and returns a registry.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, reasonMissingStore, ErrConfigUnavailable, errMissingStore)
	}

	key := strings.TrimSpace(cfg.DocumentKey)
	if key == "" {
		key = DefaultDocumentKey
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = noopPublisher{}
	}

	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	location := cfg.Location
	if location == nil {
		location = time.UTC
	}

	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	assetTimeout := cfg.AssetTimeout
	if assetTimeout <= 0 {
		assetTimeout = defaultAssetTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		store:             cfg.Store,
		key:               key,
		assets:            cfg.Assets,
		publisher:         publisher,
		idProvider:        idProvider,
		clock:             clock,
		location:          location,
		storeTimeout:      storeTimeout,
		assetTimeout:      assetTimeout,
		compensateOrphans: cfg.CompensateOrphans,
		logger:            logger,
	}, nil
}

// Selection is the outcome of Select. Err is diagnostic only; URLs is empty when it is set.
type Selection struct {
	URLs         []string
	Today        Day
	Timezone     string
	EvaluatedAt  time.Time
	TotalEntries int
	Err          error
}

// Select computes today's banners in the configured timezone. It never fails:
// store errors degrade to an empty selection.
func (s *Service) Select(ctx context.Context) Selection {
	now := s.now()
	selection := Selection{
		URLs:        []string{},
		Today:       DayOf(now),
		Timezone:    now.Location().String(),
		EvaluatedAt: now,
	}

	document, _, err := s.loadDocument(ctx, opSelect)
	if err != nil {
		s.logWarn(opSelect, "degraded_to_empty", err)
		selection.Err = err
		return selection
	}

	if _, decodeErr := document.Entries(); decodeErr != nil {
		s.logWarn(opSelect, reasonDecodeFailed, decodeErr)
	}
	selection.TotalEntries = document.Len()
	selection.URLs = SelectActive(document, selection.Today)
	return selection
}

// Check reports whether the config document can be loaded and decoded.
func (s *Service) Check(ctx context.Context) error {
	_, _, err := s.loadDocument(ctx, opCheck)
	return err
}

// Listing is every known entry sorted by priority, plus the document it was read from.
type Listing struct {
	Entries  []Entry
	Document *Document
}

// List returns all entries, active and inactive, ordered by ascending priority.
// An absent document is created lazily as an empty object.
func (s *Service) List(ctx context.Context) (Listing, error) {
	return s.list(ctx, opList, true)
}

// Export is List without the lazy create; it never writes to the store.
func (s *Service) Export(ctx context.Context) (Listing, error) {
	return s.list(ctx, opExport, false)
}

func (s *Service) list(ctx context.Context, operation string, createMissing bool) (Listing, error) {
	document, snapshot, err := s.loadDocument(ctx, operation)
	if err != nil {
		s.logError(operation, reasonLoadFailed, err)
		return Listing{}, err
	}

	if createMissing && !snapshot.Exists {
		if err := s.saveDocument(ctx, operation, document, ""); err != nil {
			s.logWarn(operation, reasonLazyCreateFailed, err)
		}
	}

	entries, decodeErr := document.Entries()
	if decodeErr != nil {
		s.logWarn(operation, reasonDecodeFailed, decodeErr)
	}
	sortByPriority(entries)

	return Listing{Entries: entries, Document: document}, nil
}

// UpdateRequest is a partial update of one entry. Nil fields are left unchanged.
type UpdateRequest struct {
	ID       string
	Active   *bool
	Day      *string
	Priority *int
}

// Update merges req into the stored entry for req.ID and writes the document back.
// Every other entry keeps its stored bytes.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (Entry, error) {
	id, err := normalizeBannerID(req.ID)
	if err != nil {
		return Entry{}, newServiceError(opUpdate, reasonInvalidID, ErrInvalidArgument, err)
	}
	if req.Active == nil {
		return Entry{}, newServiceError(opUpdate, reasonMissingActive, ErrInvalidArgument, errMissingActive)
	}
	var dayOverride Day
	if req.Day != nil && strings.TrimSpace(*req.Day) != "" {
		dayOverride, err = ParseDay(*req.Day)
		if err != nil {
			return Entry{}, newServiceError(opUpdate, reasonInvalidDay, ErrInvalidArgument, err)
		}
	}

	document, snapshot, err := s.loadDocument(ctx, opUpdate)
	if err != nil {
		s.logError(opUpdate, reasonLoadFailed, err, zap.String("banner_id", id))
		return Entry{}, err
	}

	base, exists, decodeErr := document.Entry(id)
	if !exists {
		return Entry{}, newServiceError(opUpdate, reasonNotFound, ErrNotFound, nil)
	}
	if decodeErr != nil {
		// base keeps the fields that decoded; only the broken ones fall back to defaults
		s.logWarn(opUpdate, reasonDecodeFailed, decodeErr, zap.String("banner_id", id))
	}

	next := base
	next.ID = id
	next.Active = *req.Active
	if dayOverride != "" {
		next.Day = dayOverride
	}
	if req.Priority != nil {
		next.Priority = *req.Priority
	}

	if err := document.Put(next); err != nil {
		s.logError(opUpdate, reasonEncodeFailed, err, zap.String("banner_id", id))
		return Entry{}, newServiceError(opUpdate, reasonEncodeFailed, ErrInvalidArgument, err)
	}
	if err := s.saveDocument(ctx, opUpdate, document, snapshot.Version); err != nil {
		s.logError(opUpdate, reasonSaveFailed, err, zap.String("banner_id", id))
		return Entry{}, err
	}

	s.publish(ctx, TopicBannerUpdated, []string{id}, &next)
	return next, nil
}

// Create uploads the image and registers it with the default display rule.
// A failed config write leaves the uploaded asset in place unless compensation is enabled.
func (s *Service) Create(ctx context.Context, upload Upload) (Entry, error) {
	if len(upload.Data) == 0 {
		return Entry{}, newServiceError(opCreate, reasonEmptyUpload, ErrInvalidArgument, errEmptyUpload)
	}
	if s.assets == nil {
		s.logError(opCreate, reasonMissingAssets, errMissingAssetHost)
		return Entry{}, newServiceError(opCreate, reasonMissingAssets, ErrAssetHost, errMissingAssetHost)
	}

	assetCtx, cancel := context.WithTimeout(ctx, s.assetTimeoutOrDefault())
	asset, err := s.assets.Upload(assetCtx, upload)
	cancel()
	if err != nil {
		s.logError(opCreate, reasonUploadFailed, err, zap.String("file_name", upload.FileName))
		return Entry{}, newServiceError(opCreate, reasonUploadFailed, ErrAssetHost, err)
	}

	rawID := asset.URL
	if strings.TrimSpace(rawID) == "" {
		rawID = asset.ID
	}
	id, err := normalizeBannerID(rawID)
	if err != nil {
		s.logError(opCreate, reasonUploadFailed, errMissingAssetURL)
		return Entry{}, newServiceError(opCreate, reasonUploadFailed, ErrAssetHost, errMissingAssetURL)
	}

	document, snapshot, err := s.loadDocument(ctx, opCreate)
	if err != nil {
		s.logError(opCreate, reasonLoadFailed, err, zap.String("banner_id", id))
		s.compensate(ctx, asset)
		return Entry{}, err
	}

	if document.Has(id) {
		s.logError(opCreate, reasonDuplicateID, ErrConflict, zap.String("banner_id", id))
		return Entry{}, newServiceError(opCreate, reasonDuplicateID, ErrConflict, nil)
	}

	entry := NewEntry(id, asset.ID)
	if err := document.Put(entry); err != nil {
		s.logError(opCreate, reasonEncodeFailed, err, zap.String("banner_id", id))
		s.compensate(ctx, asset)
		return Entry{}, newServiceError(opCreate, reasonEncodeFailed, ErrInvalidArgument, err)
	}
	if err := s.saveDocument(ctx, opCreate, document, snapshot.Version); err != nil {
		s.logError(opCreate, reasonSaveFailed, err, zap.String("banner_id", id))
		s.compensate(ctx, asset)
		return Entry{}, err
	}

	s.loggerOrDefault().Info("banner created",
		zap.String("banner_id", id),
		zap.String("asset_ref", entry.AssetRef))
	s.publish(ctx, TopicBannerCreated, []string{id}, &entry)
	return entry, nil
}

// DeleteRequest names the banner to remove. AssetRef is used when the entry no longer records one.
type DeleteRequest struct {
	ID       string
	AssetRef string
}

// DeleteResult reports what Delete changed.
type DeleteResult struct {
	ID            string
	AssetRef      string
	Removed       bool
	AssetReleased bool
}

// Delete releases the asset first, then drops the config key. Asset failures are
// logged and tolerated; an already absent key is not an error.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	id, err := normalizeBannerID(req.ID)
	if err != nil {
		return DeleteResult{}, newServiceError(opDelete, reasonInvalidID, ErrInvalidArgument, err)
	}

	document, snapshot, err := s.loadDocument(ctx, opDelete)
	if err != nil {
		s.logError(opDelete, reasonLoadFailed, err, zap.String("banner_id", id))
		return DeleteResult{}, err
	}

	result := DeleteResult{ID: id, AssetRef: strings.TrimSpace(req.AssetRef)}
	entry, exists, decodeErr := document.Entry(id)
	if decodeErr != nil {
		s.logWarn(opDelete, reasonDecodeFailed, decodeErr, zap.String("banner_id", id))
	}
	if exists && entry.AssetRef != UnknownAssetRef {
		result.AssetRef = entry.AssetRef
	}

	result.AssetReleased = s.releaseAsset(ctx, id, result.AssetRef)

	if !exists {
		return result, nil
	}

	document.Remove(id)
	if err := s.saveDocument(ctx, opDelete, document, snapshot.Version); err != nil {
		s.logError(opDelete, reasonSaveFailed, err, zap.String("banner_id", id))
		return DeleteResult{}, err
	}
	result.Removed = true

	s.publish(ctx, TopicBannerDeleted, []string{id}, nil)
	return result, nil
}

// ImportResult lists the ids touched by Import.
type ImportResult struct {
	Added    []string
	Replaced []string
	Skipped  []string
}

// Import merges entries into the document in one write. Existing keys are kept unless overwrite is set.
func (s *Service) Import(ctx context.Context, entries []Entry, overwrite bool) (ImportResult, error) {
	normalized := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		id, err := normalizeBannerID(entry.ID)
		if err != nil {
			return ImportResult{}, newServiceError(opImport, reasonInvalidID, ErrInvalidArgument, err)
		}
		entry.ID = id
		if entry.Day == "" {
			entry.Day = DayRandom
		} else {
			day, err := ParseDay(entry.Day.String())
			if err != nil {
				return ImportResult{}, newServiceError(opImport, reasonInvalidDay, ErrInvalidArgument, err)
			}
			entry.Day = day
		}
		if strings.TrimSpace(entry.AssetRef) == "" {
			entry.AssetRef = UnknownAssetRef
		}
		normalized = append(normalized, entry)
	}

	document, snapshot, err := s.loadDocument(ctx, opImport)
	if err != nil {
		s.logError(opImport, reasonLoadFailed, err)
		return ImportResult{}, err
	}

	var result ImportResult
	for _, entry := range normalized {
		existed := document.Has(entry.ID)
		if existed && !overwrite {
			result.Skipped = append(result.Skipped, entry.ID)
			continue
		}
		if err := document.Put(entry); err != nil {
			return ImportResult{}, newServiceError(opImport, reasonEncodeFailed, ErrInvalidArgument, err)
		}
		if existed {
			result.Replaced = append(result.Replaced, entry.ID)
		} else {
			result.Added = append(result.Added, entry.ID)
		}
	}

	if len(result.Added) == 0 && len(result.Replaced) == 0 {
		return result, nil
	}
	if err := s.saveDocument(ctx, opImport, document, snapshot.Version); err != nil {
		s.logError(opImport, reasonSaveFailed, err)
		return ImportResult{}, err
	}

	touched := append(append([]string(nil), result.Added...), result.Replaced...)
	s.publish(ctx, TopicBannerImported, touched, nil)
	return result, nil
}

func (s *Service) loadDocument(ctx context.Context, operation string) (*Document, store.Snapshot, error) {
	if s.store == nil {
		return nil, store.Snapshot{}, newServiceError(operation, reasonMissingStore, ErrConfigUnavailable, errMissingStore)
	}
	loadCtx, cancel := context.WithTimeout(ctx, s.storeTimeoutOrDefault())
	defer cancel()

	snapshot, err := s.store.Load(loadCtx, s.documentKey())
	if err != nil {
		return nil, store.Snapshot{}, newServiceError(operation, reasonLoadFailed, ErrConfigUnavailable, err)
	}
	document, err := ParseDocument(snapshot.Data)
	if err != nil {
		return nil, store.Snapshot{}, newServiceError(operation, reasonDecodeFailed, ErrConfigUnavailable, err)
	}
	return document, snapshot, nil
}

func (s *Service) saveDocument(ctx context.Context, operation string, document *Document, expectedVersion string) error {
	data, err := document.MarshalJSON()
	if err != nil {
		return newServiceError(operation, reasonEncodeFailed, ErrConfigUnavailable, err)
	}
	saveCtx, cancel := context.WithTimeout(ctx, s.storeTimeoutOrDefault())
	defer cancel()

	if _, err := s.store.Save(saveCtx, s.documentKey(), data, expectedVersion); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return newServiceError(operation, reasonVersionConflict, ErrConflict, err)
		}
		return newServiceError(operation, reasonSaveFailed, ErrConfigUnavailable, err)
	}
	return nil
}

// releaseAsset deletes assetRef from the host and reports whether the asset is gone.
func (s *Service) releaseAsset(ctx context.Context, id, assetRef string) bool {
	if assetRef == "" || assetRef == UnknownAssetRef {
		return false
	}
	if s.assets == nil {
		s.logWarn(opDelete, reasonMissingAssets, errMissingAssetHost, zap.String("banner_id", id))
		return false
	}

	assetCtx, cancel := context.WithTimeout(ctx, s.assetTimeoutOrDefault())
	defer cancel()
	err := s.assets.Delete(assetCtx, assetRef)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrAssetNotFound):
		s.loggerOrDefault().Info("asset already released",
			zap.String("banner_id", id),
			zap.String("asset_ref", assetRef))
		return true
	default:
		s.logError(opDelete, reasonAssetDeleteFailed, err,
			zap.String("banner_id", id),
			zap.String("asset_ref", assetRef))
		return false
	}
}

func (s *Service) compensate(ctx context.Context, asset Asset) {
	if !s.compensateOrphans || asset.ID == "" {
		return
	}
	assetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.assetTimeoutOrDefault())
	defer cancel()
	if err := s.assets.Delete(assetCtx, asset.ID); err != nil && !errors.Is(err, ErrAssetNotFound) {
		s.logError(opCreate, reasonCompensateFailed, err, zap.String("asset_ref", asset.ID))
		return
	}
	s.loggerOrDefault().Info("orphaned asset released", zap.String("asset_ref", asset.ID))
}

func (s *Service) publish(ctx context.Context, topic string, ids []string, entry *Entry) {
	if s.publisher == nil {
		return
	}
	event := ChangeEvent{
		Topic:      topic,
		BannerIDs:  ids,
		OccurredAt: s.now().UTC(),
	}
	if entry != nil {
		event.Entry = entry.View()
	}
	if s.idProvider != nil {
		eventID, err := s.idProvider.NewID()
		if err != nil {
			s.logWarn(topic, reasonPublishFailed, err)
		}
		event.EventID = eventID
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logWarn(topic, reasonPublishFailed, err)
	}
}

func (s *Service) now() time.Time {
	clock := s.clock
	if clock == nil {
		clock = time.Now
	}
	location := s.location
	if location == nil {
		location = time.UTC
	}
	return clock().In(location)
}

func (s *Service) documentKey() string {
	if s.key == "" {
		return DefaultDocumentKey
	}
	return s.key
}

func (s *Service) storeTimeoutOrDefault() time.Duration {
	if s.storeTimeout <= 0 {
		return defaultStoreTimeout
	}
	return s.storeTimeout
}

func (s *Service) assetTimeoutOrDefault() time.Duration {
	if s.assetTimeout <= 0 {
		return defaultAssetTimeout
	}
	return s.assetTimeout
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	s.loggerOrDefault().Error("banners service error", serviceFields(operation, reason, err, fields)...)
}

func (s *Service) logWarn(operation, reason string, err error, fields ...zap.Field) {
	s.loggerOrDefault().Warn("banners service degraded", serviceFields(operation, reason, err, fields)...)
}

func serviceFields(operation, reason string, err error, fields []zap.Field) []zap.Field {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	return append(attrs, fields...)
}
