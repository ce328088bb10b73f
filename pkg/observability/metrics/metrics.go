package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	batchJobsActive     atomic.Int64
	batchItemsCompleted atomic.Int64
	batchItemsFailed    atomic.Int64
	pipelinesCompleted  atomic.Int64
	pipelinesFailed     atomic.Int64
	validationFailures  atomic.Int64
	generationTokensIn  atomic.Int64
	generationTokensOut atomic.Int64
)

func Init() {}

func IncActiveJobs()        { batchJobsActive.Add(1) }
func DecActiveJobs()        { batchJobsActive.Add(-1) }
func IncItemCompleted()     { batchItemsCompleted.Add(1) }
func IncItemFailed()        { batchItemsFailed.Add(1) }
func IncPipelineCompleted() { pipelinesCompleted.Add(1) }
func IncPipelineFailed()    { pipelinesFailed.Add(1) }
func IncValidationFailure() { validationFailures.Add(1) }
func AddGenerationTokens(in, out int) {
	generationTokensIn.Add(int64(in))
	generationTokensOut.Add(int64(out))
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP convoforge_batch_jobs_active Number of batch jobs currently being processed.\n")
	fmt.Fprintf(w, "# TYPE convoforge_batch_jobs_active gauge\n")
	fmt.Fprintf(w, "convoforge_batch_jobs_active %d\n", batchJobsActive.Load())

	fmt.Fprintf(w, "# HELP convoforge_batch_items_completed_total Number of batch items completed since start.\n")
	fmt.Fprintf(w, "# TYPE convoforge_batch_items_completed_total counter\n")
	fmt.Fprintf(w, "convoforge_batch_items_completed_total %d\n", batchItemsCompleted.Load())

	fmt.Fprintf(w, "# HELP convoforge_batch_items_failed_total Number of batch items failed since start.\n")
	fmt.Fprintf(w, "# TYPE convoforge_batch_items_failed_total counter\n")
	fmt.Fprintf(w, "convoforge_batch_items_failed_total %d\n", batchItemsFailed.Load())

	fmt.Fprintf(w, "# HELP convoforge_pipelines_completed_total Number of enrichment pipelines completed since start.\n")
	fmt.Fprintf(w, "# TYPE convoforge_pipelines_completed_total counter\n")
	fmt.Fprintf(w, "convoforge_pipelines_completed_total %d\n", pipelinesCompleted.Load())

	fmt.Fprintf(w, "# HELP convoforge_pipelines_failed_total Number of enrichment pipelines failed since start.\n")
	fmt.Fprintf(w, "# TYPE convoforge_pipelines_failed_total counter\n")
	fmt.Fprintf(w, "convoforge_pipelines_failed_total %d\n", pipelinesFailed.Load())

	fmt.Fprintf(w, "# HELP convoforge_validation_failures_total Number of conversations that failed structural validation.\n")
	fmt.Fprintf(w, "# TYPE convoforge_validation_failures_total counter\n")
	fmt.Fprintf(w, "convoforge_validation_failures_total %d\n", validationFailures.Load())

	fmt.Fprintf(w, "# HELP convoforge_generation_input_tokens_total Input tokens consumed by the generation client.\n")
	fmt.Fprintf(w, "# TYPE convoforge_generation_input_tokens_total counter\n")
	fmt.Fprintf(w, "convoforge_generation_input_tokens_total %d\n", generationTokensIn.Load())

	fmt.Fprintf(w, "# HELP convoforge_generation_output_tokens_total Output tokens produced by the generation client.\n")
	fmt.Fprintf(w, "# TYPE convoforge_generation_output_tokens_total counter\n")
	fmt.Fprintf(w, "convoforge_generation_output_tokens_total %d\n", generationTokensOut.Load())
}
