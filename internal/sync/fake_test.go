package sync

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/listenupapp/listenup-client/internal/api"
	"github.com/listenupapp/listenup-client/internal/domain"
)

// fakeServer is an in-memory ServerClient for exercising the sync core
// without a network.
type fakeServer struct {
	mu sync.Mutex

	manifest    api.Manifest
	manifestErr error
	// manifestErrOnce makes the next manifest call fail once, then clear.
	manifestErrOnce error

	bookPages        []*api.Page[api.Book]
	contributorPages []*api.Page[api.Contributor]
	seriesPages      []*api.Page[api.Series]
	tagPages         []*api.Page[api.Tag]
	genrePages       []*api.Page[api.Genre]
	eventPages       []*api.Page[api.ListeningEvent]

	listErr map[string]error // family -> error for every list call

	// calls records mutation invocations as "method:target" strings.
	calls []string

	// execErr fails specific mutations, keyed by "method:target".
	execErr map[string]error

	// ack controls SubmitListeningEvents; nil acknowledges everything.
	ack func(events []*domain.ListeningEvent) *api.BatchAck

	// lastBookUpdate keeps the most recent UpdateBook payload per book.
	lastBookUpdate map[string]domain.BookUpdate

	// lastBookParams captures the most recent ListBooks params.
	lastBookParams api.ListParams
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		manifest: api.Manifest{
			LibraryID:  "lib-1",
			Checkpoint: "cp-1",
		},
		listErr:        make(map[string]error),
		execErr:        make(map[string]error),
		lastBookUpdate: make(map[string]domain.BookUpdate),
	}
}

func (f *fakeServer) record(method, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + ":" + target
	f.calls = append(f.calls, key)
	if err, ok := f.execErr[key]; ok {
		return err
	}
	return nil
}

func (f *fakeServer) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if call == prefix || (len(call) > len(prefix) && call[:len(prefix)+1] == prefix+":") {
			n++
		}
	}
	return n
}

// page serves from a page slice using numeric cursors.
func page[T any](pages []*api.Page[T], params api.ListParams) (*api.Page[T], error) {
	idx := 0
	if params.Cursor != "" {
		var err error
		idx, err = strconv.Atoi(params.Cursor)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q", params.Cursor)
		}
	}
	if idx >= len(pages) {
		return &api.Page[T]{}, nil
	}

	p := *pages[idx]
	p.NextCursor = strconv.Itoa(idx + 1)
	p.HasMore = idx+1 < len(pages)
	return &p, nil
}

func (f *fakeServer) GetManifest(context.Context) (*api.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.manifestErrOnce != nil {
		err := f.manifestErrOnce
		f.manifestErrOnce = nil
		return nil, err
	}
	if f.manifestErr != nil {
		return nil, f.manifestErr
	}
	m := f.manifest
	return &m, nil
}

func (f *fakeServer) ListBooks(_ context.Context, params api.ListParams) (*api.Page[api.Book], error) {
	f.mu.Lock()
	f.lastBookParams = params
	f.mu.Unlock()
	if err := f.listErr["books"]; err != nil {
		return nil, err
	}
	return page(f.bookPages, params)
}

func (f *fakeServer) ListContributors(_ context.Context, params api.ListParams) (*api.Page[api.Contributor], error) {
	if err := f.listErr["contributors"]; err != nil {
		return nil, err
	}
	return page(f.contributorPages, params)
}

func (f *fakeServer) ListSeries(_ context.Context, params api.ListParams) (*api.Page[api.Series], error) {
	if err := f.listErr["series"]; err != nil {
		return nil, err
	}
	return page(f.seriesPages, params)
}

func (f *fakeServer) ListTags(_ context.Context, params api.ListParams) (*api.Page[api.Tag], error) {
	if err := f.listErr["tags"]; err != nil {
		return nil, err
	}
	return page(f.tagPages, params)
}

func (f *fakeServer) ListGenres(_ context.Context, params api.ListParams) (*api.Page[api.Genre], error) {
	if err := f.listErr["genres"]; err != nil {
		return nil, err
	}
	return page(f.genrePages, params)
}

func (f *fakeServer) ListListeningEvents(_ context.Context, params api.ListParams) (*api.Page[api.ListeningEvent], error) {
	if err := f.listErr["events"]; err != nil {
		return nil, err
	}
	return page(f.eventPages, params)
}

func (f *fakeServer) UpdateBook(_ context.Context, id string, fields domain.BookUpdate) error {
	if err := f.record("UpdateBook", id); err != nil {
		return err
	}
	f.mu.Lock()
	f.lastBookUpdate[id] = fields
	f.mu.Unlock()
	return nil
}

func (f *fakeServer) UpdateContributor(_ context.Context, id string, _ domain.ContributorUpdate) error {
	return f.record("UpdateContributor", id)
}

func (f *fakeServer) UpdateSeries(_ context.Context, id string, _ domain.SeriesUpdate) error {
	return f.record("UpdateSeries", id)
}

func (f *fakeServer) SetBookContributors(_ context.Context, bookID string, _ []domain.BookContributor) error {
	return f.record("SetBookContributors", bookID)
}

func (f *fakeServer) SetBookSeries(_ context.Context, bookID string, _ []domain.BookSeries) error {
	return f.record("SetBookSeries", bookID)
}

func (f *fakeServer) MergeContributor(_ context.Context, targetID, sourceID string) error {
	return f.record("MergeContributor", targetID+"<-"+sourceID)
}

func (f *fakeServer) UnmergeContributor(_ context.Context, contributorID, aliasName string) error {
	return f.record("UnmergeContributor", contributorID+"/"+aliasName)
}

func (f *fakeServer) SubmitListeningEvents(_ context.Context, events []*domain.ListeningEvent) (*api.BatchAck, error) {
	if err := f.record("SubmitListeningEvents", strconv.Itoa(len(events))); err != nil {
		return nil, err
	}
	if f.ack != nil {
		return f.ack(events), nil
	}
	ack := &api.BatchAck{}
	for _, e := range events {
		ack.Acknowledged = append(ack.Acknowledged, e.ID)
	}
	return ack, nil
}

func (f *fakeServer) UpdatePlaybackPosition(_ context.Context, pos domain.PositionUpdatePayload) error {
	return f.record("UpdatePlaybackPosition", pos.BookID)
}

func (f *fakeServer) UpdatePreferences(_ context.Context, _ domain.PreferencesUpdate) error {
	return f.record("UpdatePreferences", "preferences")
}
