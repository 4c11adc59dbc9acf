package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fablecast/dramatis/internal/batch"
	"github.com/fablecast/dramatis/internal/budget"
	"github.com/fablecast/dramatis/internal/catalog"
	"github.com/fablecast/dramatis/internal/character"
	"github.com/fablecast/dramatis/internal/checkpoint"
	"github.com/fablecast/dramatis/internal/merge"
	"github.com/fablecast/dramatis/internal/passes"
	"github.com/fablecast/dramatis/internal/source"
)

// pageBreak separates per-page dialogue samples in a voice-stage context.
const pageBreak = "\n---PAGE BREAK---\n"

// defaultVoiceGroupSize is how many characters share one voice-stage call.
const defaultVoiceGroupSize = 2

// ErrNoBackend is the only failure a caller sees from a run: the pipeline
// had no inference backend to work with. Everything else degrades per unit.
var ErrNoBackend = errors.New("no inference backend available")

// healthChecker is implemented by backends that can be probed before work
// begins.
type healthChecker interface {
	Health(ctx context.Context) error
}

// Progress reports one completed unit of work.
type Progress struct {
	DocumentID string
	Stage      checkpoint.Stage
	Unit       int
	Units      int
}

// Stats summarizes a finished run.
type Stats struct {
	Characters     int  `json:"characters"`
	DialogueLines  int  `json:"dialogue_lines"`
	NarrationLines int  `json:"narration_lines"`
	Pages          int  `json:"pages"`
	Completed      bool `json:"completed"`
}

// Result is the final merged output for one document.
type Result struct {
	DocumentID string                   `json:"document_id"`
	Characters []character.Character    `json:"characters"`
	Narration  []character.DialogueLine `json:"narration"`
	Stats      Stats                    `json:"stats"`
}

// Config assembles a Coordinator's collaborators and tuning.
type Config struct {
	// Passes is the retry protocol for every extraction call.
	Passes passes.Config
	// Checkpoints persists resumable state. Nil disables persistence.
	Checkpoints *checkpoint.Manager
	// Catalog matches characters to speakers. Nil means the built-in one.
	Catalog *catalog.Catalog
	// Merge tunes name-variant folding.
	Merge merge.Options
	// VoiceGroupSize is how many characters share a voice call. Zero means
	// two.
	VoiceGroupSize int
	// DetailedProfiling runs the separate trait, personality, and profile
	// passes per character instead of the combined voice pass.
	DetailedProfiling bool
	// OnProgress, when set, observes every completed unit.
	OnProgress func(Progress)
}

// Coordinator drives the three extraction stages over one document at a
// time: names, then dialogue scoped to known names, then voice work over
// the merged cast. A single worker processes units sequentially; the
// checkpoint taken after each unit makes any interruption resumable.
type Coordinator struct {
	backend passes.Backend
	runner  *passes.Runner
	cfg     Config
}

// New returns a coordinator. A nil backend is only reported when Run is
// called, so construction never fails.
func New(backend passes.Backend, cfg Config) *Coordinator {
	if cfg.Passes == (passes.Config{}) {
		cfg.Passes = passes.DefaultConfig()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.VoiceGroupSize <= 0 {
		cfg.VoiceGroupSize = defaultVoiceGroupSize
	}
	if cfg.Merge == (merge.Options{}) {
		cfg.Merge = merge.DefaultOptions()
	}
	c := &Coordinator{backend: backend, cfg: cfg}
	if backend != nil {
		c.runner = passes.NewRunner(backend, cfg.Passes)
	}
	return c
}

// run carries the mutable state of one document run.
type run struct {
	doc       source.Document
	paras     []batch.Paragraph
	acc       *merge.Accumulator
	narration []character.DialogueLine
	dialogue  int
	created   time.Time
}

// Run processes a document end to end, resuming from a valid checkpoint
// when one exists. It returns the merged cast and statistics. Unit-level
// failures are logged and skipped; only a missing backend or cancellation
// stops a run.
func (c *Coordinator) Run(ctx context.Context, doc source.Document) (*Result, error) {
	if c.backend == nil || c.runner == nil {
		return nil, ErrNoBackend
	}
	if hc, ok := c.backend.(healthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoBackend, err)
		}
	}

	st := &run{
		doc:   doc,
		paras: batch.Clean(doc.Pages),
		acc:   merge.NewAccumulator(c.cfg.Merge),
	}
	stage := checkpoint.StageNames
	cursor := 0

	if cp := c.resume(ctx, doc); cp != nil {
		st.acc = merge.Restore(cp.Characters, c.cfg.Merge)
		st.narration = cp.Narration
		st.dialogue = cp.DialogueTotal
		st.created = cp.CreatedAt
		stage = cp.Stage
		cursor = cp.Cursor
		slog.Info("resuming pipeline from checkpoint",
			"document_id", doc.ID, "stage", stage, "cursor", cursor)
	}

	if stage == checkpoint.StageComplete {
		c.clear(ctx, doc)
		return c.finalize(st), nil
	}

	if stage == checkpoint.StageNames || stage == checkpoint.StageNotStarted {
		if err := c.runNames(ctx, st, cursor); err != nil {
			return nil, err
		}
		stage, cursor = checkpoint.StageDialogue, 0
		c.save(ctx, st, stage, cursor)
	}

	if stage == checkpoint.StageDialogue {
		if err := c.runDialogue(ctx, st, cursor); err != nil {
			return nil, err
		}
		stage, cursor = checkpoint.StageVoice, 0
		c.save(ctx, st, stage, cursor)
	}

	if stage == checkpoint.StageVoice {
		if err := c.runVoice(ctx, st, cursor); err != nil {
			return nil, err
		}
	}

	result := c.finalize(st)
	c.clear(ctx, doc)
	slog.Info("pipeline complete",
		"document_id", doc.ID,
		"characters", result.Stats.Characters,
		"dialogue_lines", result.Stats.DialogueLines,
		"pages", result.Stats.Pages)
	return result, nil
}

// runNames is stage one: extract character names per batch and merge them
// into the accumulator with page attribution.
func (c *Coordinator) runNames(ctx context.Context, st *run, cursor int) error {
	batches := batch.Build(st.paras, budget.Names.InputChars())
	for i := cursor; i < len(batches); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := batches[i]

		names, err := c.runner.Names(ctx, b.Text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("name extraction failed, skipping batch",
				"document_id", st.doc.ID, "batch", i, "error", err)
		}
		kept := names[:0]
		for _, name := range names {
			if !isNarration(name) {
				kept = append(kept, name)
			}
		}
		for _, page := range b.Pages {
			st.acc.AddNames(kept, page)
		}

		c.save(ctx, st, checkpoint.StageNames, i+1)
		c.progress(st.doc.ID, checkpoint.StageNames, i+1, len(batches))
	}
	return nil
}

// runDialogue is stage two: extract attributed lines per batch, scoped to
// the names stage one found on the batch's pages. Lines from unknown
// speakers and the narrator go to the narration track.
func (c *Coordinator) runDialogue(ctx context.Context, st *run, cursor int) error {
	batches := batch.Build(st.paras, budget.Dialogue.InputChars())
	for i := cursor; i < len(batches); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := batches[i]

		lines, err := c.runner.Dialogue(ctx, c.namesOn(st, b), b.Text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("dialogue extraction failed, skipping batch",
				"document_id", st.doc.ID, "batch", i, "error", err)
		}
		page := 0
		if len(b.Pages) > 0 {
			page = b.Pages[0]
		}
		for _, line := range lines {
			line.Page = page
			if isNarration(line.Speaker) || !st.acc.AddDialogue(line) {
				line.Speaker = "Narrator"
				st.narration = append(st.narration, line)
				continue
			}
			st.dialogue++
		}

		c.save(ctx, st, checkpoint.StageDialogue, i+1)
		c.progress(st.doc.ID, checkpoint.StageDialogue, i+1, len(batches))
	}
	return nil
}

// runVoice is stage three: trait and voice-profile work over the merged
// cast, a group of characters per call, then speaker assignment.
func (c *Coordinator) runVoice(ctx context.Context, st *run, cursor int) error {
	groups := groupNames(st.acc.Characters(), c.cfg.VoiceGroupSize)
	for i := cursor; i < len(groups); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if c.cfg.DetailedProfiling {
			if err := c.profileDetailed(ctx, st, groups[i]); err != nil {
				return err
			}
		} else {
			if err := c.profileCombined(ctx, st, groups[i]); err != nil {
				return err
			}
		}
		for _, name := range groups[i] {
			c.assignSpeaker(st, name)
		}

		c.save(ctx, st, checkpoint.StageVoice, i+1)
		c.progress(st.doc.ID, checkpoint.StageVoice, i+1, len(groups))
	}
	return nil
}

// profileCombined runs the single-call trait and profile pass for a group.
func (c *Coordinator) profileCombined(ctx context.Context, st *run, names []string) error {
	subjects := make([]passes.VoiceSubject, 0, len(names))
	for _, name := range names {
		subjects = append(subjects, passes.VoiceSubject{
			Name:    name,
			Context: c.voiceContext(st, name),
		})
	}

	results, err := c.runner.Voice(ctx, subjects)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("voice pass failed, using defaults",
			"document_id", st.doc.ID, "characters", strings.Join(names, ","), "error", err)
		return nil
	}
	for _, res := range results {
		st.acc.AddTraits(res.Name, res.Traits)
		st.acc.SetProfile(res.Name, res.Profile)
	}
	return nil
}

// profileDetailed runs the separate trait, personality, and profile chain
// for each character in the group.
func (c *Coordinator) profileDetailed(ctx context.Context, st *run, names []string) error {
	for _, name := range names {
		sample := c.voiceContext(st, name)

		traits, err := c.runner.Traits(ctx, name, sample)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("trait pass failed",
				"document_id", st.doc.ID, "character", name, "error", err)
		}
		st.acc.AddTraits(name, traits)

		points, err := c.runner.Personality(ctx, name, traits)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("personality pass failed",
				"document_id", st.doc.ID, "character", name, "error", err)
		}
		st.acc.AddPersonality(name, strings.Join(points, "; "))

		profile, err := c.runner.Profile(ctx, name, points)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("profile pass failed",
				"document_id", st.doc.ID, "character", name, "error", err)
			continue
		}
		st.acc.SetProfile(name, profile)
	}
	return nil
}

// voiceContext aggregates a character's dialogue across every page it
// appears on, page samples separated by an explicit break marker.
func (c *Coordinator) voiceContext(st *run, name string) string {
	ch, ok := st.acc.Resolve(name)
	if !ok || len(ch.Dialogue) == 0 {
		return "(no dialogue recorded)"
	}

	var pages []string
	for _, page := range ch.Pages {
		var sample []string
		for _, line := range ch.Dialogue {
			if line.Page == page {
				sample = append(sample, fmt.Sprintf("%s: %q", line.Speaker, line.Text))
			}
		}
		if len(sample) > 0 {
			pages = append(pages, strings.Join(sample, "\n"))
		}
	}
	if len(pages) == 0 {
		return "(no dialogue recorded)"
	}
	return strings.Join(pages, pageBreak)
}

// assignSpeaker fills trait fallbacks, derives the emotion bias from the
// character's dialogue, and pins the catalog speaker.
func (c *Coordinator) assignSpeaker(st *run, name string) {
	ch, ok := st.acc.Resolve(name)
	if !ok {
		return
	}
	if len(ch.Traits) == 0 {
		ch.Traits = character.DefaultTraits()
	}

	profile := character.VoiceProfile{}
	if ch.Profile != nil {
		profile = *ch.Profile
	}
	profile.Normalize()
	if len(profile.EmotionBias) == 0 {
		profile.EmotionBias = emotionBias(ch.Dialogue)
	}

	if sp, ok := c.cfg.Catalog.Match(ch.Name, profile, ch.Traits); ok {
		profile.SpeakerID = sp.ID
	}
	ch.Profile = &profile
	ch.SpeakerID = profile.SpeakerID
}

// finalize snapshots the accumulator into a Result.
func (c *Coordinator) finalize(st *run) *Result {
	chars := st.acc.Characters()
	dialogue := 0
	for _, ch := range chars {
		dialogue += len(ch.Dialogue)
	}
	return &Result{
		DocumentID: st.doc.ID,
		Characters: chars,
		Narration:  st.narration,
		Stats: Stats{
			Characters:     len(chars),
			DialogueLines:  dialogue,
			NarrationLines: len(st.narration),
			Pages:          st.doc.PageCount(),
			Completed:      true,
		},
	}
}

func (c *Coordinator) resume(ctx context.Context, doc source.Document) *checkpoint.Checkpoint {
	if c.cfg.Checkpoints == nil {
		return nil
	}
	return c.cfg.Checkpoints.Resume(ctx, doc.ID, "", doc.Hash)
}

// save checkpoints the current run state. Persistence failures are logged
// and swallowed; they cost resumability, not correctness.
func (c *Coordinator) save(ctx context.Context, st *run, stage checkpoint.Stage, cursor int) {
	if c.cfg.Checkpoints == nil {
		return
	}
	cp := &checkpoint.Checkpoint{
		DocumentID:    st.doc.ID,
		ContentHash:   st.doc.Hash,
		Stage:         stage,
		Cursor:        cursor,
		Characters:    st.acc.Characters(),
		Narration:     st.narration,
		DialogueTotal: st.dialogue,
		CreatedAt:     st.created,
	}
	if err := c.cfg.Checkpoints.Save(ctx, cp); err != nil {
		slog.Warn("checkpoint save failed", "document_id", st.doc.ID, "error", err)
		return
	}
	st.created = cp.CreatedAt
}

func (c *Coordinator) clear(ctx context.Context, doc source.Document) {
	if c.cfg.Checkpoints == nil {
		return
	}
	if err := c.cfg.Checkpoints.Clear(ctx, doc.ID, ""); err != nil {
		slog.Warn("checkpoint clear failed", "document_id", doc.ID, "error", err)
	}
}

func (c *Coordinator) progress(docID string, stage checkpoint.Stage, unit, units int) {
	if c.cfg.OnProgress == nil {
		return
	}
	c.cfg.OnProgress(Progress{DocumentID: docID, Stage: stage, Unit: unit, Units: units})
}

// namesOn returns the known names across a batch's pages, in cast order.
func (c *Coordinator) namesOn(st *run, b batch.Batch) []string {
	seen := make(map[string]bool)
	var names []string
	for _, page := range b.Pages {
		for _, name := range st.acc.NamesOnPage(page) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// groupNames slices the cast into voice-stage groups. Grouping is derived
// from the sorted cast so a resumed run rebuilds identical groups.
func groupNames(chars []character.Character, size int) [][]string {
	var groups [][]string
	for start := 0; start < len(chars); start += size {
		end := min(start+size, len(chars))
		group := make([]string, 0, end-start)
		for _, ch := range chars[start:end] {
			group = append(group, ch.Name)
		}
		groups = append(groups, group)
	}
	return groups
}

// emotionBias turns a dialogue history into per-emotion weights in [0,1].
func emotionBias(lines []character.DialogueLine) map[string]float64 {
	if len(lines) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, line := range lines {
		counts[character.NormalizeEmotion(line.Emotion)]++
	}
	bias := make(map[string]float64, len(counts))
	for emotion, n := range counts {
		bias[emotion] = float64(n) / float64(len(lines))
	}
	return bias
}

func isNarration(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "narrator", "unknown":
		return true
	}
	return false
}
