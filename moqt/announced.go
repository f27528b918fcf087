package moqt

import (
	"context"

	"github.com/okdaichi/moqlite/moqt/watch"
)

// Announcement reports that a broadcast became available or ended.
type Announcement struct {
	Path   BroadcastPath
	Active bool
}

// NewAnnounced creates an empty announcement log.
func NewAnnounced() *AnnouncedProducer {
	return &AnnouncedProducer{
		log: watch.New[[]Announcement](nil),
	}
}

// AnnouncedProducer appends to an announcement log. Every consumer reads the
// whole log from the beginning, so late consumers learn about broadcasts
// announced before they started.
type AnnouncedProducer struct {
	log *watch.Producer[[]Announcement]
}

func (a *AnnouncedProducer) Write(ann Announcement) error {
	return a.log.UpdateFunc(func(log []Announcement) []Announcement {
		return append(log, ann)
	})
}

func (a *AnnouncedProducer) Close() error {
	return a.log.Close()
}

func (a *AnnouncedProducer) Abort(reason error) error {
	return a.log.Abort(reason)
}

func (a *AnnouncedProducer) Done() <-chan struct{} {
	return a.log.Done()
}

// Unused returns a channel that is closed while the log has no consumers.
func (a *AnnouncedProducer) Unused() <-chan struct{} {
	return a.log.Unused()
}

// Consume creates a reader of the announcements whose path starts with prefix.
// Matching is on raw bytes, see BroadcastPath.HasPrefix.
func (a *AnnouncedProducer) Consume(prefix string) *AnnouncedConsumer {
	return &AnnouncedConsumer{
		prefix: prefix,
		log:    a.log.Consume(),
	}
}

// AnnouncedConsumer reads announcements matching a prefix.
// It must not be used from several goroutines at once; use Clone instead.
type AnnouncedConsumer struct {
	prefix string
	log    *watch.Consumer[[]Announcement]
	index  int
}

// Prefix returns the prefix the consumer filters on.
func (a *AnnouncedConsumer) Prefix() string {
	return a.prefix
}

// Next returns the next matching announcement, with the prefix removed from
// its path. It returns io.EOF once the log is closed and fully read.
func (a *AnnouncedConsumer) Next(ctx context.Context) (Announcement, error) {
	for {
		log, err := a.log.When(ctx, a.hasUnread)
		if err != nil {
			return Announcement{}, err
		}

		for a.index < len(log) {
			ann := log[a.index]
			a.index++

			if suffix, ok := ann.Path.GetSuffix(a.prefix); ok {
				return Announcement{Path: BroadcastPath(suffix), Active: ann.Active}, nil
			}
		}
	}
}

func (a *AnnouncedConsumer) hasUnread(log []Announcement) bool {
	return len(log) > a.index
}

// Clone creates an independent reader at the same position.
func (a *AnnouncedConsumer) Clone() *AnnouncedConsumer {
	return &AnnouncedConsumer{
		prefix: a.prefix,
		log:    a.log.Clone(),
		index:  a.index,
	}
}

// Close releases the reader without affecting other readers.
func (a *AnnouncedConsumer) Close() {
	a.log.Close()
}

func (a *AnnouncedConsumer) Done() <-chan struct{} {
	return a.log.Done()
}
