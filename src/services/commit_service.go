package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/username/tradejournal/src/importerrors"
	"github.com/username/tradejournal/src/logger"
	"github.com/username/tradejournal/src/mapping"
	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/parsers"
	"github.com/username/tradejournal/src/parsers/tabular"
	"github.com/username/tradejournal/src/processors"
	"github.com/username/tradejournal/src/security/validation"
	"github.com/username/tradejournal/src/utils"
)

const (
	ckUpload = "upload_%s"
	ckJob    = "job_%s"

	previewRows = 5
	// Row errors kept per job for the errors.csv download.
	maxJobErrors = 10000
)

// CommitConfig holds the commit protocol limits, usually taken from config.Cfg.
type CommitConfig struct {
	UploadTTL        time.Duration
	DefaultChunkSize int
	MaxChunkSize     int
	BatchSize        int
	DefaultTimezone  string
	DefaultCurrency  string
}

func (c CommitConfig) withDefaults() CommitConfig {
	if c.UploadTTL <= 0 {
		c.UploadTTL = 24 * time.Hour
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = 5000
	}
	if c.DefaultChunkSize <= 0 || c.DefaultChunkSize > c.MaxChunkSize {
		c.DefaultChunkSize = 500
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "USD"
	}
	return c
}

// UploadResult is the preview returned for a staged upload.
type UploadResult struct {
	UploadToken      string                  `json:"uploadToken"`
	Filename         string                  `json:"filename"`
	FileType         string                  `json:"fileType"`
	Headers          []string                `json:"headers"`
	SampleRows       []models.Row            `json:"sampleRows"`
	TotalRows        int                     `json:"totalRows"`
	Detection        *models.DetectionResult `json:"detection,omitempty"`
	SuggestedPreset  string                  `json:"suggestedPreset,omitempty"`
	SuggestedMapping mapping.Mapping         `json:"suggestedMapping"`
	MappingErrors    []string                `json:"mappingErrors"`
}

type CommitOptions struct {
	Timezone  string `json:"tz"`
	Currency  string `json:"currency" validate:"omitempty,len=3,alpha"`
	DryRun    bool   `json:"dryRun"`
	ChunkSize int    `json:"chunkSize" validate:"omitempty,min=1,max=5000"`
}

type CommitStartRequest struct {
	UploadToken string            `json:"uploadToken" validate:"required,uuid"`
	BrokerID    string            `json:"brokerId" validate:"omitempty,max=32"`
	Mapping     map[string]string `json:"mapping"`
	Options     CommitOptions     `json:"options"`
}

type CommitStartResult struct {
	JobID     string `json:"jobId"`
	RunID     int64  `json:"runId,omitempty"`
	TotalRows int    `json:"totalRows"`
	ChunkSize int    `json:"chunkSize"`
	Mode      string `json:"mode"`
}

type CommitChunkRequest struct {
	JobID  string `json:"jobId" validate:"required,uuid"`
	Offset int    `json:"offset" validate:"min=0"`
	Limit  int    `json:"limit" validate:"required,min=1,max=5000"`
	DryRun *bool  `json:"dryRun,omitempty"`
}

type CommitChunkResult struct {
	ProcessedRows int                        `json:"processedRows"`
	Added         int                        `json:"added"`
	Duplicates    int                        `json:"duplicates"`
	Errors        []importerrors.ImportError `json:"errors"`
	ErrorCount    int                        `json:"errorCount"`
	ErrorsCSVURL  string                     `json:"errorsCsvUrl,omitempty"`
	NextOffset    int                        `json:"nextOffset"`
	Done          bool                       `json:"done"`
}

// Commit modes: rows go through a broker adapter or through the row parser
// with a user-confirmed column mapping.
const (
	ModeAdapter = "adapter"
	ModeMapping = "mapping"
)

type stagedUpload struct {
	userID    string
	filename  string
	table     *tabular.Table
	detection *models.DetectionResult
}

type commitJob struct {
	mu sync.Mutex

	id        string
	userID    string
	runID     int64
	broker    string
	mode      string
	adapter   parsers.Adapter
	headerMap map[string]string
	class     models.AssetClass
	fieldMap  processors.FieldMap
	timezone  string
	currency  string
	dryRun    bool
	table     *tabular.Table

	nextOffset int
	committed  map[rowMark]bool
	added      int
	duplicates int
	errs       []importerrors.ImportError
	errCount   int
	done       bool
}

// rowMark is a 0-based row position committed in one mode. Dry runs and real
// commits of the same row are counted separately.
type rowMark struct {
	pos    int
	dryRun bool
}

// markRows records rows [offset, offset+n) and returns the positions that had
// not been committed in this mode before.
func (j *commitJob) markRows(offset, n int, dryRun bool) map[int]bool {
	if j.committed == nil {
		j.committed = map[rowMark]bool{}
	}
	fresh := map[int]bool{}
	for pos := offset; pos < offset+n; pos++ {
		m := rowMark{pos: pos, dryRun: dryRun}
		if !j.committed[m] {
			j.committed[m] = true
			fresh[pos] = true
		}
	}
	return fresh
}

type CommitService struct {
	registry *parsers.Registry
	upsert   *UpsertService
	importer *ImportService
	runs     ImportRunStore
	staging  *cache.Cache
	validate *validator.Validate
	cfg      CommitConfig
}

// NewCommitService wires the commit protocol. runs may be nil, in which case
// jobs are not recorded as import runs.
func NewCommitService(registry *parsers.Registry, store TradeStore, runs ImportRunStore, cfg CommitConfig) *CommitService {
	cfg = cfg.withDefaults()
	return &CommitService{
		registry: registry,
		upsert:   NewUpsertService(store),
		importer: NewImportService(store),
		runs:     runs,
		staging:  cache.New(cfg.UploadTTL, cfg.UploadTTL/2),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
	}
}

// Validator exposes the request validator so handlers share its cache.
func (s *CommitService) Validator() *validator.Validate { return s.validate }

// Upload reads the file, runs detection, suggests a mapping and stages the
// table until the caller commits it.
func (s *CommitService) Upload(ctx context.Context, userID, filename, contentType string, data []byte) (*UploadResult, error) {
	log := logger.FromContext(ctx)
	if userID == "" {
		return nil, ErrMissingIdentity
	}
	table, err := tabular.Read(data, filename, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	det := s.registry.Detect(table.Headers, table.Sample(parsers.DetectSampleSize))
	suggested, presetKey := mapping.Suggest(table.Headers, det)
	mappingErrors := mapping.Validate(suggested)
	if mappingErrors == nil {
		mappingErrors = []string{}
	}

	token := uuid.NewString()
	s.staging.Set(fmt.Sprintf(ckUpload, token), &stagedUpload{
		userID:    userID,
		filename:  validation.SanitizeFilename(filename),
		table:     table,
		detection: det,
	}, s.cfg.UploadTTL)

	broker := ""
	if det != nil {
		broker = det.BrokerID
	}
	log.Info("Upload staged", "userID", userID, "fileType", table.FileType, "rows", len(table.Rows), "broker", broker)

	return &UploadResult{
		UploadToken:      token,
		Filename:         validation.SanitizeFilename(filename),
		FileType:         table.FileType,
		Headers:          table.Headers,
		SampleRows:       table.Sample(previewRows),
		TotalRows:        len(table.Rows),
		Detection:        det,
		SuggestedPreset:  presetKey,
		SuggestedMapping: suggested,
		MappingErrors:    mappingErrors,
	}, nil
}

func (s *CommitService) upload(userID, token string) (*stagedUpload, error) {
	v, ok := s.staging.Get(fmt.Sprintf(ckUpload, token))
	if !ok {
		return nil, ErrUploadNotFound
	}
	up := v.(*stagedUpload)
	if up.userID != userID {
		return nil, ErrUploadNotFound
	}
	return up, nil
}

func (s *CommitService) job(userID, jobID string) (*commitJob, error) {
	v, ok := s.staging.Get(fmt.Sprintf(ckJob, jobID))
	if !ok {
		return nil, ErrJobNotFound
	}
	job := v.(*commitJob)
	if job.userID != userID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// CommitStart turns a staged upload into a job. A client mapping selects the
// row parser; without one the detected (or requested) broker adapter is used.
func (s *CommitService) CommitStart(ctx context.Context, userID string, req CommitStartRequest) (*CommitStartResult, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	up, err := s.upload(userID, req.UploadToken)
	if err != nil {
		return nil, err
	}

	job := &commitJob{
		id:       uuid.NewString(),
		userID:   userID,
		timezone: s.cfg.DefaultTimezone,
		currency: s.cfg.DefaultCurrency,
		dryRun:   req.Options.DryRun,
		table:    up.table,
	}
	if tz := strings.TrimSpace(req.Options.Timezone); tz != "" {
		job.timezone = tz
	}
	if cur := strings.TrimSpace(req.Options.Currency); cur != "" {
		job.currency = strings.ToUpper(cur)
	}

	if err := s.chooseMode(job, up, req); err != nil {
		return nil, err
	}

	chunkSize := req.Options.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.cfg.DefaultChunkSize
	}
	chunkSize = utils.MinInt(chunkSize, s.cfg.MaxChunkSize)

	if s.runs != nil {
		run := &models.ImportRun{
			UserID:    userID,
			JobID:     job.id,
			Broker:    job.broker,
			Filename:  up.filename,
			FileType:  up.table.FileType,
			DryRun:    job.dryRun,
			TotalRows: len(up.table.Rows),
		}
		if err := s.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record import run: %w", err)
		}
		job.runID = run.ID
	}

	s.staging.Set(fmt.Sprintf(ckJob, job.id), job, s.cfg.UploadTTL)
	logger.FromContext(ctx).Info("Commit started", "userID", userID, "jobID", job.id, "mode", job.mode,
		"broker", job.broker, "rows", len(up.table.Rows), "dryRun", job.dryRun)

	return &CommitStartResult{
		JobID:     job.id,
		RunID:     job.runID,
		TotalRows: len(up.table.Rows),
		ChunkSize: chunkSize,
		Mode:      job.mode,
	}, nil
}

func (s *CommitService) chooseMode(job *commitJob, up *stagedUpload, req CommitStartRequest) error {
	brokerID := strings.ToLower(strings.TrimSpace(req.BrokerID))

	if len(req.Mapping) > 0 {
		m := mapping.Sanitize(req.Mapping)
		if errs := mapping.Validate(m); len(errs) > 0 {
			return fmt.Errorf("%w: %s", ErrInvalidMapping, strings.Join(errs, "; "))
		}
		if missing := missingHeaders(m, up.table.Headers); len(missing) > 0 {
			return fmt.Errorf("%w: unknown headers %s", ErrInvalidMapping, strings.Join(missing, ", "))
		}
		job.mode = ModeMapping
		job.fieldMap = m.FieldMap()
		job.broker = brokerID
		if job.broker == "" {
			job.broker = "manual"
		}
		return nil
	}

	det := up.detection
	if brokerID != "" && (det == nil || det.BrokerID != brokerID) {
		a, ok := s.registry.Get(brokerID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownBroker, brokerID)
		}
		det, _ = a.Detect(parsers.DetectInput{Headers: up.table.Headers, SampleRows: up.table.Sample(parsers.DetectSampleSize)})
		if det == nil {
			return fmt.Errorf("%w: file does not look like a %s export", ErrInvalidMapping, a.Label())
		}
	}
	if det == nil {
		return fmt.Errorf("%w: no broker detected, a column mapping is required", ErrInvalidMapping)
	}
	a, ok := s.registry.Get(det.BrokerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBroker, det.BrokerID)
	}
	job.mode = ModeAdapter
	job.adapter = a
	job.broker = det.BrokerID
	job.headerMap = det.HeaderMap
	job.class = det.AssetClass
	return nil
}

func missingHeaders(m mapping.Mapping, headers []string) []string {
	present := map[string]bool{}
	for _, h := range headers {
		present[strings.ToLower(strings.TrimSpace(h))] = true
	}
	var missing []string
	for _, k := range m.Keys() {
		if !present[strings.ToLower(m[k])] {
			missing = append(missing, m[k])
		}
	}
	return missing
}

// CommitChunk imports rows [offset, offset+limit) of a job. Replaying a chunk
// is safe: rows already stored come back as duplicates and the job totals do
// not move.
func (s *CommitService) CommitChunk(ctx context.Context, userID string, req CommitChunkRequest) (*CommitChunkResult, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	job, err := s.job(userID, req.JobID)
	if err != nil {
		return nil, err
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	total := len(job.table.Rows)
	rows := job.table.Slice(req.Offset, req.Limit)
	res := &CommitChunkResult{Errors: []importerrors.ImportError{}, NextOffset: req.Offset + len(rows)}
	if len(rows) == 0 {
		res.NextOffset = max(req.Offset, total)
		res.Done = true
		s.finish(ctx, job, models.RunCompleted)
		return res, nil
	}

	dryRun := job.dryRun
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	parsed := s.parseChunk(ctx, job, rows, req.Offset)
	up := s.upsert.BatchUpsertTrades(ctx, userID, parsed.Trades, s.cfg.BatchSize, UpsertOptions{DryRun: dryRun})

	res.ProcessedRows = len(rows)
	res.Added = up.Inserted
	res.Duplicates = up.DuplicatesSkipped
	res.Errors = append(append(res.Errors, parsed.Errors...), up.ErrorDetails...)
	res.ErrorCount = len(res.Errors)
	res.Done = res.NextOffset >= total

	progressed := 0
	if res.NextOffset > job.nextOffset {
		progressed = res.NextOffset - job.nextOffset
		job.nextOffset = res.NextOffset
	}
	// A replayed chunk reports its results but adds nothing to the job or
	// run totals; errors are kept once per row.
	fresh := job.markRows(req.Offset, len(rows), dryRun)
	added, duplicates, newErrs := 0, 0, 0
	if len(fresh) > 0 {
		added, duplicates = res.Added, res.Duplicates
		for _, e := range res.Errors {
			if !fresh[e.RowIndex-1] {
				continue
			}
			newErrs++
			if len(job.errs) < maxJobErrors {
				job.errs = append(job.errs, e)
			}
		}
	}
	job.added += added
	job.duplicates += duplicates
	job.errCount += newErrs
	if job.errCount > 0 {
		res.ErrorsCSVURL = "/api/import/jobs/" + job.id + "/errors.csv"
	}
	res.Errors = importerrors.Preview(res.Errors, errorPreviewLimit)

	if s.runs != nil && job.runID != 0 {
		if err := s.runs.AddProgress(ctx, job.runID, progressed, added, duplicates, newErrs); err != nil {
			logger.FromContext(ctx).Error("Failed to record chunk progress", "jobID", job.id, "runID", job.runID, "error", err)
		}
	}
	if res.Done {
		s.finish(ctx, job, models.RunCompleted)
	}

	logger.FromContext(ctx).Info("Chunk committed", "userID", userID, "jobID", job.id, "offset", req.Offset,
		"rows", len(rows), "added", res.Added, "duplicates", res.Duplicates, "errors", res.ErrorCount, "dryRun", dryRun)
	return res, nil
}

func (s *CommitService) parseChunk(ctx context.Context, job *commitJob, rows []models.Row, offset int) processors.ProcessResult {
	if job.mode == ModeMapping {
		return processors.NewRowProcessor().Process(ctx, rows, job.fieldMap, processors.ProcessOptions{
			Broker:   job.broker,
			Timezone: job.timezone,
			Currency: job.currency,
			StartRow: offset,
		})
	}
	out := job.adapter.Parse(ctx, parsers.ParseInput{
		Rows:         rows,
		HeaderMap:    job.headerMap,
		UserTimezone: job.timezone,
		AssetClass:   job.class,
		StartRow:     offset,
	})
	for _, w := range out.Warnings {
		logger.FromContext(ctx).Info("Adapter warning", "jobID", job.id, "broker", job.broker, "warning", w)
	}
	return processors.SummarizeFills(ctx, out, len(rows))
}

// finish is called with job.mu held.
func (s *CommitService) finish(ctx context.Context, job *commitJob, status string) {
	if job.done {
		return
	}
	job.done = true
	if s.runs == nil || job.runID == 0 {
		return
	}
	if err := s.runs.Finish(ctx, job.runID, status, time.Now().UTC()); err != nil {
		logger.FromContext(ctx).Error("Failed to finish import run", "jobID", job.id, "runID", job.runID, "error", err)
	}
}

// ErrorsCSV renders every row error recorded for a job.
func (s *CommitService) ErrorsCSV(userID, jobID string) ([]byte, error) {
	job, err := s.job(userID, jobID)
	if err != nil {
		return nil, err
	}
	job.mu.Lock()
	errs := append([]importerrors.ImportError{}, job.errs...)
	job.mu.Unlock()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"row", "code", "message", "symbol"}); err != nil {
		return nil, err
	}
	for _, e := range errs {
		record := []string{
			strconv.Itoa(e.RowIndex),
			string(e.Code),
			validation.SanitizeForFormulaInjection(e.Message),
			validation.SanitizeForFormulaInjection(validation.StripUnprintable(e.SymbolRaw)),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ImportRequest is the one-shot import of a whole file.
type ImportRequest struct {
	Filename    string
	ContentType string
	Data        []byte
	BrokerID    string
	Timezone    string
	Currency    string
	DryRun      bool
}

// Import reads, detects, parses and upserts a file in one call.
func (s *CommitService) Import(ctx context.Context, userID string, req ImportRequest) (ImportResponse, error) {
	overallStart := time.Now()
	log := logger.FromContext(ctx)
	log.Info("Import START", "userID", userID, "filename", req.Filename, "broker", req.BrokerID)

	table, err := tabular.Read(req.Data, req.Filename, req.ContentType)
	if err != nil {
		return ImportResponse{}, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	tz := req.Timezone
	if tz == "" {
		tz = s.cfg.DefaultTimezone
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	job := &commitJob{timezone: tz, currency: currency, table: table}
	up := &stagedUpload{table: table, detection: s.registry.Detect(table.Headers, table.Sample(parsers.DetectSampleSize))}

	if err := s.chooseMode(job, up, CommitStartRequest{BrokerID: req.BrokerID}); err != nil {
		if !errors.Is(err, ErrInvalidMapping) {
			return ImportResponse{}, err
		}
		// No adapter recognised the file: fall back to header guessing.
		m, _ := mapping.Suggest(table.Headers, nil)
		if errs := mapping.Validate(m); len(errs) > 0 {
			return ImportResponse{}, fmt.Errorf("%w: %s", ErrInvalidMapping, strings.Join(errs, "; "))
		}
		job.mode = ModeMapping
		job.fieldMap = m.FieldMap()
		job.broker = strings.ToLower(req.BrokerID)
		if job.broker == "" {
			job.broker = "manual"
		}
	}

	parsed := s.parseChunk(ctx, job, table.Rows, 0)
	ic := ContextFromResult(job.broker, parsed)
	ic.BatchSize = s.cfg.BatchSize
	ic.DryRun = req.DryRun

	resp := s.importer.ImportTrades(ctx, userID, parsed.Trades, ic)
	log.Info("Import END", "userID", userID, "broker", job.broker, "success", resp.Success, "duration", time.Since(overallStart))
	return resp, nil
}
