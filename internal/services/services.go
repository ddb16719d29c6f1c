// Package services holds the dues engine and the bill, ledger, member and
// audit orchestration built on the storage ports.
//
// Services follow a read-then-write sequence per record: fetch the old row,
// compute the new one, write it, then append an audit entry. Nothing is
// locked; two concurrent edits of the same record race and the last write
// wins. Multi-record operations undo what they already wrote when a later
// step fails, because the row store has no cross-table transactions.
package services

import (
	"context"

	"dues/internal/blob"
	"dues/internal/core"
	"dues/internal/log"
)

// uploader turns a locally staged attachment into a URL. A failed upload
// never fails the owning write; it comes back as a warning instead.
type uploader struct {
	store  blob.Store
	folder string
	logger *log.Logger
}

func (u uploader) upload(ctx context.Context, a *blob.Attachment) (url string, warning string) {
	if a == nil || len(a.Data) == 0 {
		return "", ""
	}
	var err error
	if u.store == nil {
		err = core.ErrStorageNotConfigured
	} else {
		url, err = u.store.Put(ctx, blob.ObjectName(u.folder, a.Name), a.Data)
	}
	if err != nil {
		warning = blob.Classify(err)
		u.logger.LogSoftFailure(ctx, "Attachment not stored", err, log.OpUpload,
			log.LogFields{log.FieldWarning: warning})
		return "", warning
	}
	return url, ""
}
