package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	StatsSessionConnectAttempts = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_session_connect_attempts",
		Help:         "stats_session_connect_attempts provides total attempts to connect to tool providers",
		RequiredTags: []string{"provider"},
	}

	StatsSessionConnectFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_session_connect_failed",
		Help:         "stats_session_connect_failed provides total tool providers that failed to connect",
		RequiredTags: []string{"provider", "kind"},
	}

	StatsSessionConnected = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_session_connected",
		Help:         "stats_session_connected provides total sessions established with tool providers",
		RequiredTags: []string{"provider"},
	}

	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_sent",
		Help:         "stats_llm_bytes_sent provides total bytes sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMBytesReceived = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_received",
		Help:         "stats_llm_bytes_received provides total bytes received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMBytesTotal = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_total",
		Help:         "stats_llm_bytes_total provides total bytes sent and received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMTotalTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_total_tokens",
		Help:         "stats_llm_total_tokens provides total tokens sent and received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsQuerySucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_query_succeeded",
		Help:         "stats_query_succeeded provides total queries answered",
		RequiredTags: []string{"agent"},
	}

	StatsQueryFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_query_failed",
		Help:         "stats_query_failed provides total queries failed",
		RequiredTags: []string{"agent"},
	}

	StatsQueryIterationsExceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_query_iterations_exceeded",
		Help:         "stats_query_iterations_exceeded provides total queries stopped at the iterations limit",
		RequiredTags: []string{"agent"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsInvalid = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_invalid",
		Help:         "stats_tool_calls_invalid provides total tool calls rejected by the input schema",
		RequiredTags: []string{"tool"},
	}

	StatsStreamFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_stream_failed",
		Help:         "stats_stream_failed provides total streams that ended with the failure fragment",
		RequiredTags: []string{"agent"},
	}

	StatsStreamCancelled = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_stream_cancelled",
		Help:         "stats_stream_cancelled provides total streams cancelled by the consumer",
		RequiredTags: []string{"agent"},
	}

	StatsHintsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_hints_failed",
		Help:         "stats_hints_failed provides total hint generations failed",
		RequiredTags: []string{"agent"},
	}
)

// Perf
var (
	PerfSessionConnect = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_session_connect",
		Help:         "perf_session_connect provides duration of tool provider connect",
		RequiredTags: []string{"provider"},
	}

	PerfQuery = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_query",
		Help:         "perf_query provides duration of query",
		RequiredTags: []string{"agent"},
	}

	PerfLLMCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_llm_call",
		Help:         "perf_llm_call provides duration of LLM call",
		RequiredTags: []string{"agent", "model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfLLMCall,
	&PerfQuery,
	&PerfSessionConnect,
	&PerfToolCall,
	&StatsHintsFailed,
	&StatsLLMBytesReceived,
	&StatsLLMBytesSent,
	&StatsLLMBytesTotal,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsLLMTotalTokens,
	&StatsQueryFailed,
	&StatsQueryIterationsExceeded,
	&StatsQuerySucceeded,
	&StatsSessionConnectAttempts,
	&StatsSessionConnectFailed,
	&StatsSessionConnected,
	&StatsStreamCancelled,
	&StatsStreamFailed,
	&StatsToolCallsFailed,
	&StatsToolCallsInvalid,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
