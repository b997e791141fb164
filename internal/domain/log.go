package domain

// LogPartitionKey is shared by every row this service writes.
const LogPartitionKey = "imagePartition"

const (
	AttrProcessed     = "processed"
	AttrResizeWidth   = "resize_width"
	AttrResizeHeight  = "resize_height"
	AttrBlobURL       = "blob_url"
	AttrTopBlobURL    = "top_blob_url"
	AttrBottomBlobURL = "bottom_blob_url"
)

// LogRecord is one row in the image log table. Rows are written once per
// completed operation and never updated by the service afterwards.
type LogRecord struct {
	PartitionKey string
	RowKey       string
	Attributes   map[string]any
}

func NewResizeLogRecord(destName, blobURL string, width, height int) LogRecord {
	return LogRecord{
		PartitionKey: LogPartitionKey,
		RowKey:       destName,
		Attributes: map[string]any{
			AttrProcessed:    true,
			AttrResizeWidth:  width,
			AttrResizeHeight: height,
			AttrBlobURL:      blobURL,
		},
	}
}

func NewSplitLogRecord(blobName, topURL, bottomURL string) LogRecord {
	return LogRecord{
		PartitionKey: LogPartitionKey,
		RowKey:       blobName,
		Attributes: map[string]any{
			AttrProcessed:     true,
			AttrTopBlobURL:    topURL,
			AttrBottomBlobURL: bottomURL,
		},
	}
}
