package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"enrich/internal/config"
	"enrich/internal/logger"
	"enrich/internal/management"
	"enrich/pkg/ratelimit"
	"enrich/pkg/tracing"
)

// DrainFunc blocks until every event already admitted past the
// PauseGate has finished its pipeline run. The Runtime supplies this;
// the AssetManager has no visibility into the work queue itself.
type DrainFunc func(ctx context.Context) error

// AssetManager periodically re-fetches the reference databases
// declared by the active Registry's enrichments and swaps in a
// rebuilt Registry when (and only when) every changed asset
// downloaded and every enrichment rebuilt successfully. A failed
// refresh leaves the previous Registry and the previous asset files
// untouched — refresh is all-or-nothing, never partial.
type AssetManager struct {
	registry *EnrichmentRegistry
	gate     *PauseGate
	configs  []config.EnrichmentConfEntry
	cacheDir string
	period   time.Duration
	limiter  *ratelimit.DownloadLimiter
	client   *http.Client
	deps     BuildDeps
	drain    DrainFunc
	logger   logger.Logger

	audit    *management.AuditLogger
	notifier *management.SwapNotifier
	confRepo *management.ConfRepository

	states map[string]AssetState
}

func NewAssetManager(
	reg *EnrichmentRegistry,
	gate *PauseGate,
	configs []config.EnrichmentConfEntry,
	assetsCfg config.AssetsConfig,
	deps BuildDeps,
	drain DrainFunc,
	log logger.Logger,
) *AssetManager {
	return &AssetManager{
		registry: reg,
		gate:     gate,
		configs:  configs,
		cacheDir: assetsCfg.CacheDir,
		period:   assetsCfg.UpdatePeriod,
		limiter:  ratelimit.NewDownloadLimiter(assetsCfg.DownloadConcurrency),
		client:   &http.Client{Timeout: 30 * time.Second},
		deps:     deps,
		drain:    drain,
		logger:   log,
		states:   make(map[string]AssetState),
	}
}

// WithAudit attaches a build-history logger. Every Startup and
// refresh attempt, successful or not, is recorded once this is set.
func (m *AssetManager) WithAudit(audit *management.AuditLogger) *AssetManager {
	m.audit = audit
	return m
}

// WithNotifier attaches a swap notifier. Only successful swaps are
// announced; a rolled-back refresh never reaches this.
func (m *AssetManager) WithNotifier(notifier *management.SwapNotifier) *AssetManager {
	m.notifier = notifier
	return m
}

// WithConfRepository attaches a centrally administered set of
// enrichment declarations that is merged into the statically
// configured set at the start of Startup and of every refresh cycle.
// A declaration whose name is not yet in the set is added; one whose
// name is already present (static, or merged in an earlier cycle) is
// left as it is, so changing or disabling it takes no effect in a
// running process.
func (m *AssetManager) WithConfRepository(repo *management.ConfRepository) *AssetManager {
	m.confRepo = repo
	return m
}

// Startup performs the initial asset fetch and the first Registry
// build. Failure here is fatal to the process; the caller decides
// that, this just returns the error.
func (m *AssetManager) Startup(ctx context.Context) error {
	m.mergeAdministeredConfigs(ctx)

	localPaths, err := m.fetchAll(ctx, AssetURIs(m.configs))
	if err != nil {
		m.logBuild(ctx, management.TriggerStartup, nil, err)
		return fmt.Errorf("startup asset fetch: %w", err)
	}

	reg, err := Build(m.configs, localPaths, m.deps)
	if err != nil {
		m.logBuild(ctx, management.TriggerStartup, nil, err)
		return fmt.Errorf("startup registry build: %w", err)
	}

	m.registry.Swap(reg)
	m.gate.Open()
	m.logBuild(ctx, management.TriggerStartup, reg, nil)
	m.notifySwap(ctx, management.TriggerStartup, reg)
	return nil
}

// mergeAdministeredConfigs folds in enrichment declarations read from
// the centrally administered store, when one is attached. A failure
// to reach the store is logged and otherwise ignored: the statically
// configured enrichments still run. A declaration whose name is
// already in the set is skipped.
func (m *AssetManager) mergeAdministeredConfigs(ctx context.Context) {
	if m.confRepo == nil {
		return
	}
	administered, err := m.confRepo.List(ctx)
	if err != nil {
		m.logger.WarnwCtx(ctx, "failed to read administered enrichment declarations", "error", err)
		return
	}
	known := make(map[string]bool, len(m.configs))
	for _, entry := range m.configs {
		known[entry.Name] = true
	}
	for _, entry := range administered {
		if known[entry.Name] {
			continue
		}
		known[entry.Name] = true
		m.configs = append(m.configs, entry)
	}
}

func (m *AssetManager) logBuild(ctx context.Context, trigger management.Trigger, reg *Registry, buildErr error) {
	if m.audit == nil {
		return
	}
	entry := management.AuditEntry{
		Trigger:      trigger,
		HashesBefore: m.hashesSnapshot(),
	}
	if buildErr != nil {
		entry.Outcome = management.OutcomeBuildFailed
		entry.Error = buildErr.Error()
	} else {
		entry.Outcome = management.OutcomeOK
		entry.HashesAfter = m.hashesSnapshot()
	}
	if err := m.audit.LogBuild(ctx, entry); err != nil {
		m.logger.WarnwCtx(ctx, "failed to write registry audit entry", "error", err)
	}
}

func (m *AssetManager) notifySwap(ctx context.Context, trigger management.Trigger, reg *Registry) {
	if m.notifier == nil || reg == nil {
		return
	}
	event := management.SwapEvent{
		Trigger:   trigger,
		BuiltAt:   reg.BuiltAt,
		AssetURIs: AssetURIs(m.configs),
		Hashes:    m.hashesSnapshot(),
	}
	if err := m.notifier.NotifySwap(ctx, event); err != nil {
		m.logger.WarnwCtx(ctx, "failed to publish registry swap notification", "error", err)
	}
}

func (m *AssetManager) hashesSnapshot() map[string]string {
	hashes := make(map[string]string, len(m.states))
	for uri, s := range m.states {
		hashes[uri] = s.ContentHash
	}
	return hashes
}

// Run blocks, refreshing on the configured period, until ctx is
// cancelled. If no period is configured the manager is inert after
// Startup: it returns immediately.
func (m *AssetManager) Run(ctx context.Context) error {
	if m.period <= 0 {
		return nil
	}

	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.refresh(ctx); err != nil {
				m.logger.ErrorwCtx(ctx, "asset refresh failed, keeping previous registry", "error", err)
			}
		}
	}
}

func (m *AssetManager) refresh(ctx context.Context) error {
	ctx, span := tracing.GetTracer("asset-manager").Start(ctx, "assets.refresh")
	defer span.End()

	m.mergeAdministeredConfigs(ctx)

	changed, err := m.changedURIs(ctx)
	if err != nil {
		return fmt.Errorf("probe assets: %w", err)
	}
	if len(changed) == 0 {
		return nil
	}

	priorStates := m.snapshotStates(changed)

	tempPaths, err := m.downloadToTemp(ctx, changed)
	if err != nil {
		m.restoreStates(priorStates, changed)
		m.logBuild(ctx, management.TriggerRefresh, nil, err)
		return fmt.Errorf("download changed assets: %w", err)
	}

	m.gate.Close()
	defer m.gate.Open()

	if m.drain != nil {
		if err := m.drain(ctx); err != nil {
			m.cleanupTemp(tempPaths)
			m.restoreStates(priorStates, changed)
			m.logBuild(ctx, management.TriggerRefresh, nil, err)
			return fmt.Errorf("drain before swap: %w", err)
		}
	}

	finalPaths, backups, err := m.commitTemp(tempPaths)
	if err != nil {
		m.restoreBackups(backups)
		m.cleanupTemp(tempPaths)
		m.restoreStates(priorStates, changed)
		m.logBuild(ctx, management.TriggerRefresh, nil, err)
		return fmt.Errorf("commit asset files: %w", err)
	}

	allPaths := m.currentLocalPaths()
	for uri, path := range finalPaths {
		allPaths[uri] = path
	}

	reg, err := Build(m.configs, allPaths, m.deps)
	if err != nil {
		m.restoreBackups(backups)
		m.restoreStates(priorStates, changed)
		m.logBuild(ctx, management.TriggerRefresh, nil, err)
		return fmt.Errorf("rebuild registry: %w", err)
	}

	m.registry.Swap(reg)
	m.removeBackups(backups)
	for uri, path := range finalPaths {
		m.states[uri] = AssetState{URI: uri, LocalPath: path, LastFetched: time.Now().UTC(), ContentHash: m.states[uri].ContentHash}
	}
	m.logBuild(ctx, management.TriggerRefresh, reg, nil)
	m.notifySwap(ctx, management.TriggerRefresh, reg)
	return nil
}

// changedURIs re-fetches each asset's content and compares its hash
// against the last known one. A URI with no prior state is always
// considered changed (first fetch).
func (m *AssetManager) changedURIs(ctx context.Context) ([]string, error) {
	var changed []string
	for _, uri := range AssetURIs(m.configs) {
		hash, err := m.fetchHash(ctx, uri)
		if err != nil {
			return nil, err
		}
		prior, known := m.states[uri]
		if !known || prior.ContentHash != hash {
			changed = append(changed, uri)
		}
	}
	return changed, nil
}

func (m *AssetManager) fetchHash(ctx context.Context, uri string) (string, error) {
	if err := m.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	defer m.limiter.Release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	h := sha256.New()
	if _, err := io.Copy(h, resp.Body); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// downloadToTemp fetches every listed URI to a temp file under
// cacheDir and records the hash it observed.
func (m *AssetManager) downloadToTemp(ctx context.Context, uris []string) (map[string]string, error) {
	temps := make(map[string]string, len(uris))
	for _, uri := range uris {
		path, hash, err := m.downloadOne(ctx, uri)
		if err != nil {
			m.cleanupTemp(temps)
			return nil, err
		}
		temps[uri] = path
		m.states[uri] = AssetState{URI: uri, ContentHash: hash}
	}
	return temps, nil
}

func (m *AssetManager) downloadOne(ctx context.Context, uri string) (string, string, error) {
	if err := m.limiter.Acquire(ctx); err != nil {
		return "", "", err
	}
	defer m.limiter.Release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("download %s: status %d", uri, resp.StatusCode)
	}

	if err := os.MkdirAll(m.cacheDir, 0o755); err != nil {
		return "", "", err
	}
	tmp, err := os.CreateTemp(m.cacheDir, "asset-*.tmp")
	if err != nil {
		return "", "", err
	}
	defer tmp.Close()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", "", err
	}

	return tmp.Name(), hex.EncodeToString(h.Sum(nil)), nil
}

// commitTemp atomically renames each temp file onto its live local
// path, keeping a backup of whatever was previously there so a later
// failure can be rolled back.
func (m *AssetManager) commitTemp(tempPaths map[string]string) (finalPaths map[string]string, backups map[string]string, err error) {
	finalPaths = make(map[string]string, len(tempPaths))
	backups = make(map[string]string, len(tempPaths))

	livePath := m.liveLocalPaths()

	for uri, tmp := range tempPaths {
		live, ok := livePath[uri]
		if !ok {
			live = filepath.Join(m.cacheDir, filepath.Base(tmp))
		}

		if _, statErr := os.Stat(live); statErr == nil {
			backup := live + ".bak"
			if renameErr := os.Rename(live, backup); renameErr != nil {
				return finalPaths, backups, renameErr
			}
			backups[live] = backup
		}

		if renameErr := os.Rename(tmp, live); renameErr != nil {
			return finalPaths, backups, renameErr
		}
		finalPaths[uri] = live
	}

	return finalPaths, backups, nil
}

func (m *AssetManager) restoreBackups(backups map[string]string) {
	for live, backup := range backups {
		os.Rename(backup, live)
	}
}

func (m *AssetManager) removeBackups(backups map[string]string) {
	for _, backup := range backups {
		os.Remove(backup)
	}
}

func (m *AssetManager) cleanupTemp(tempPaths map[string]string) {
	for _, path := range tempPaths {
		os.Remove(path)
	}
}

func (m *AssetManager) liveLocalPaths() map[string]string {
	paths := make(map[string]string)
	for _, entry := range m.configs {
		for _, a := range entry.Assets {
			if a.LocalPath != "" {
				paths[a.URI] = a.LocalPath
			}
		}
	}
	return paths
}

// snapshotStates captures the pre-refresh AssetState for each URI
// about to be re-downloaded, so a failed refresh can put m.states
// back exactly as it found it instead of leaving a changed hash on
// record for content that was rolled back on disk.
func (m *AssetManager) snapshotStates(uris []string) map[string]AssetState {
	prior := make(map[string]AssetState, len(uris))
	for _, uri := range uris {
		prior[uri] = m.states[uri]
	}
	return prior
}

func (m *AssetManager) restoreStates(prior map[string]AssetState, uris []string) {
	for _, uri := range uris {
		if state, ok := prior[uri]; ok && state.ContentHash != "" {
			m.states[uri] = state
		} else {
			delete(m.states, uri)
		}
	}
}

func (m *AssetManager) currentLocalPaths() map[string]string {
	paths := make(map[string]string, len(m.states))
	for uri, s := range m.states {
		if s.LocalPath != "" {
			paths[uri] = s.LocalPath
		}
	}
	for uri, path := range m.liveLocalPaths() {
		if _, ok := paths[uri]; !ok {
			paths[uri] = path
		}
	}
	return paths
}

// fetchAll is the startup equivalent of downloadToTemp+commitTemp:
// every asset is fetched once and landed directly on its configured
// local path, with no prior Registry to roll back to on failure.
func (m *AssetManager) fetchAll(ctx context.Context, uris []string) (map[string]string, error) {
	paths := make(map[string]string, len(uris))
	livePath := m.liveLocalPaths()

	for _, uri := range uris {
		tmp, hash, err := m.downloadOne(ctx, uri)
		if err != nil {
			return nil, err
		}

		live, ok := livePath[uri]
		if !ok {
			live = filepath.Join(m.cacheDir, filepath.Base(tmp))
		}
		if err := os.MkdirAll(filepath.Dir(live), 0o755); err != nil {
			return nil, err
		}
		if err := os.Rename(tmp, live); err != nil {
			return nil, err
		}

		paths[uri] = live
		m.states[uri] = AssetState{URI: uri, LocalPath: live, LastFetched: time.Now().UTC(), ContentHash: hash}
	}
	return paths, nil
}
