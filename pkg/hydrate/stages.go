package hydrate

import (
	"context"
	"fmt"

	"github.com/ykurenkov/chatsync/pkg/core"
)

// exec runs one dequeued job through the stage sequence. Any stage error
// aborts the whole job: nothing is partially committed, the job is dropped,
// and the queue drains to the next one.
func (p *Pipeline) exec(ctx context.Context, j *batchJob) error {
	if j.deletedIDs != nil {
		return p.execDeleted(ctx, j)
	}

	entries := classify(j.fragments)

	if err := p.markExisting(ctx, j.accountID, entries); err != nil {
		return err
	}

	// Work set excludes already-cached entries when the job asked for
	// idempotent acknowledgement; they still appear in the final result.
	work := entries
	if j.ignoreIfExists {
		work = make([]*core.ResultEntry, 0, len(entries))
		for _, e := range entries {
			if !e.AlreadyExists {
				work = append(work, e)
			}
		}
	}

	if err := p.fetchMissing(ctx, j.accountID, work); err != nil {
		return err
	}

	if err := p.filterKeyExchange(ctx, j.accountID, work); err != nil {
		return err
	}

	if err := p.resolveOwners(ctx, j.accountID, work); err != nil {
		return err
	}

	if err := p.persistAndReread(ctx, j.accountID, work); err != nil {
		return err
	}

	result := &core.BatchResult{
		AccountID: j.accountID,
		JobID:     j.id,
		Entries:   entries,
	}
	p.results.Publish(result)
	p.notifyNew(ctx, j.accountID, entries)

	p.log.Debug("batch hydrated", "job_id", j.id, "messages", len(entries))
	return nil
}

func (p *Pipeline) execDeleted(ctx context.Context, j *batchJob) error {
	if err := p.deps.Messages.Delete(ctx, j.accountID, j.deletedIDs); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	p.results.Publish(&core.BatchResult{
		AccountID:  j.accountID,
		JobID:      j.id,
		DeletedIDs: j.deletedIDs,
	})
	return nil
}

// classify builds the result accumulator, one entry per message id, split
// into full-DTO and backup-only shapes. Later fragments for the same id
// refine earlier ones.
func classify(fragments []core.UpdateFragment) []*core.ResultEntry {
	index := make(map[int]*core.ResultEntry, len(fragments))
	var entries []*core.ResultEntry
	for _, f := range fragments {
		id := f.MessageID()
		if id == 0 {
			continue
		}
		e, ok := index[id]
		if !ok {
			e = &core.ResultEntry{MessageID: id}
			index[id] = e
			entries = append(entries, e)
		}
		if f.Full != nil {
			e.DTO = f.Full
		}
		if f.Backup != nil && e.Backup == nil {
			e.Backup = f.Backup
		}
	}
	return entries
}

// markExisting flags entries whose message id is already in the local cache.
func (p *Pipeline) markExisting(ctx context.Context, accountID int64, entries []*core.ResultEntry) error {
	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.MessageID)
	}
	missing, err := p.deps.Messages.MissingMessages(ctx, accountID, ids)
	if err != nil {
		return fmt.Errorf("find missing messages: %w", err)
	}
	missingSet := make(map[int]struct{}, len(missing))
	for _, id := range missing {
		missingSet[id] = struct{}{}
	}
	for _, e := range entries {
		_, isMissing := missingSet[e.MessageID]
		e.AlreadyExists = !isMissing
	}
	return nil
}

// fetchMissing batch-fetches full DTOs for entries that are absent from the
// local cache and whose fragment carried only the backup shape. Cached
// messages are never re-fetched.
func (p *Pipeline) fetchMissing(ctx context.Context, accountID int64, entries []*core.ResultEntry) error {
	var fetch []int
	for _, e := range entries {
		if e.DTO == nil && !e.AlreadyExists {
			fetch = append(fetch, e.MessageID)
		}
	}
	if len(fetch) == 0 {
		return nil
	}
	dtos, err := p.deps.API.GetByID(ctx, accountID, fetch)
	if err != nil {
		return fmt.Errorf("fetch messages by id: %w", err)
	}
	byID := make(map[int]*core.MessageDTO, len(dtos))
	for _, dto := range dtos {
		byID[dto.ID] = dto
	}
	for _, e := range entries {
		if e.DTO == nil {
			e.DTO = byID[e.MessageID]
		}
	}
	return nil
}

// filterKeyExchange drops protocol-internal handshake messages from the
// persisted set. Dropped entries stay in the result for bookkeeping.
func (p *Pipeline) filterKeyExchange(ctx context.Context, accountID int64, entries []*core.ResultEntry) error {
	if p.deps.KeyEx == nil {
		return nil
	}
	for _, e := range entries {
		if e.DTO == nil {
			continue
		}
		handled, err := p.deps.KeyEx.Intercept(ctx, accountID, e.DTO)
		if err != nil {
			return fmt.Errorf("key-exchange intercept: %w", err)
		}
		e.Dropped = handled
	}
	return nil
}

// resolveOwners collects user/community/chat ids referenced by the surviving
// DTOs and fetches only those absent from the local cache.
func (p *Pipeline) resolveOwners(ctx context.Context, accountID int64, entries []*core.ResultEntry) error {
	userSet := make(map[int64]struct{})
	communitySet := make(map[int64]struct{})
	chatSet := make(map[int64]struct{})
	for _, e := range entries {
		if e.DTO == nil || e.Dropped {
			continue
		}
		switch {
		case e.DTO.FromID > 0:
			userSet[e.DTO.FromID] = struct{}{}
		case e.DTO.FromID < 0:
			communitySet[-e.DTO.FromID] = struct{}{}
		}
		if chatID, ok := e.DTO.ChatID(); ok {
			chatSet[chatID] = struct{}{}
		} else if e.DTO.PeerID > 0 {
			userSet[e.DTO.PeerID] = struct{}{}
		} else if e.DTO.PeerID < 0 {
			communitySet[-e.DTO.PeerID] = struct{}{}
		}
	}
	if len(userSet) == 0 && len(communitySet) == 0 && len(chatSet) == 0 {
		return nil
	}

	missingUsers, err := p.deps.Owners.MissingUsers(ctx, accountID, keys(userSet))
	if err != nil {
		return fmt.Errorf("find missing users: %w", err)
	}
	missingCommunities, err := p.deps.Owners.MissingCommunities(ctx, accountID, keys(communitySet))
	if err != nil {
		return fmt.Errorf("find missing communities: %w", err)
	}
	if (len(missingUsers) > 0 || len(missingCommunities) > 0) && p.deps.Refresher != nil {
		if err := p.deps.Refresher.CacheActualOwners(ctx, accountID, missingUsers, missingCommunities); err != nil {
			return fmt.Errorf("cache owners: %w", err)
		}
	}

	missingChats, err := p.deps.Owners.MissingChats(ctx, accountID, keys(chatSet))
	if err != nil {
		return fmt.Errorf("find missing chats: %w", err)
	}
	if len(missingChats) > 0 {
		chats, err := p.deps.API.GetChats(ctx, accountID, missingChats)
		if err != nil {
			return fmt.Errorf("fetch chats: %w", err)
		}
		if err := p.deps.Owners.InsertChats(ctx, accountID, chats); err != nil {
			return fmt.Errorf("insert chats: %w", err)
		}
	}
	return nil
}

// persistAndReread inserts the surviving DTOs, then reads the same ids back
// as hydrated messages. The round-trip guarantees the emitted object is
// exactly what is now in the source of truth.
func (p *Pipeline) persistAndReread(ctx context.Context, accountID int64, entries []*core.ResultEntry) error {
	var insert []*core.MessageDTO
	for _, e := range entries {
		if e.DTO != nil && !e.Dropped {
			insert = append(insert, e.DTO)
		}
	}
	if len(insert) > 0 {
		if err := p.deps.Messages.Insert(ctx, accountID, insert); err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}
	}

	var read []int
	for _, e := range entries {
		if e.Dropped {
			continue
		}
		if e.DTO != nil || e.AlreadyExists {
			read = append(read, e.MessageID)
		}
	}
	if len(read) == 0 {
		return nil
	}
	messages, err := p.deps.Messages.FindCached(ctx, accountID, read)
	if err != nil {
		return fmt.Errorf("reread messages: %w", err)
	}
	byID := make(map[int]*core.Message, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
	}
	for _, e := range entries {
		e.Message = byID[e.MessageID]
	}
	return nil
}

// notifyNew raises a local push notification for every freshly hydrated
// message whose conversation is not intercepted by an open UI surface.
func (p *Pipeline) notifyNew(ctx context.Context, accountID int64, entries []*core.ResultEntry) {
	if p.deps.Notifier == nil {
		return
	}
	for _, e := range entries {
		if e.AlreadyExists || e.Dropped || e.Message == nil || e.Message.Out {
			continue
		}
		if p.interceptors.Intercepted(accountID, e.Message.PeerID) {
			continue
		}
		p.deps.Notifier.NotifyAboutNewMessage(ctx, accountID, e.Message)
	}
}

func keys(set map[int64]struct{}) []int64 {
	if len(set) == 0 {
		return nil
	}
	out := make([]int64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
