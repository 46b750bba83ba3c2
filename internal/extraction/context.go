package extraction

import (
	"context"
	"maps"
)

// LogDetails carries optional attributes of the extraction run that produced
// a result. They are copied onto every log recorded under the context.
type LogDetails struct {
	ModelName        *string
	TokenCountInput  *int
	TokenCountOutput *int
	ProcessingTimeMS *int
	Metadata         map[string]any
}

type detailsKey struct{}

// WithLogDetails attaches details to ctx. Metadata keys are merged with any
// already present; other fields replace earlier values when set.
func WithLogDetails(ctx context.Context, d LogDetails) context.Context {
	prev := detailsFromContext(ctx)
	merged := prev
	if d.ModelName != nil {
		merged.ModelName = d.ModelName
	}
	if d.TokenCountInput != nil {
		merged.TokenCountInput = d.TokenCountInput
	}
	if d.TokenCountOutput != nil {
		merged.TokenCountOutput = d.TokenCountOutput
	}
	if d.ProcessingTimeMS != nil {
		merged.ProcessingTimeMS = d.ProcessingTimeMS
	}
	merged.Metadata = make(map[string]any, len(prev.Metadata)+len(d.Metadata))
	maps.Copy(merged.Metadata, prev.Metadata)
	maps.Copy(merged.Metadata, d.Metadata)
	return context.WithValue(ctx, detailsKey{}, merged)
}

func detailsFromContext(ctx context.Context) LogDetails {
	d, _ := ctx.Value(detailsKey{}).(LogDetails)
	return d
}

func (d LogDetails) metadata() map[string]any {
	if len(d.Metadata) == 0 {
		return nil
	}
	return maps.Clone(d.Metadata)
}
