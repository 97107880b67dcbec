// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai defines the embedding provider contract used by docvec.
//
// The Embedder interface turns text into fixed-length vectors. Callers are
// responsible for batching: EmbedTexts is invoked with at most one batch of
// texts and must return one vector per text, in input order.
//
// Provider configuration lives in Config, built with functional options:
//
//	cfg := ai.NewConfig(
//	    ai.WithEmbeddingHost("https://api.openai.com"),  // /v1 added automatically
//	    ai.WithEmbeddingModel("text-embedding-3-small"),
//	    ai.WithAPIKey(os.Getenv("DOCVEC_EMBEDDING_API_KEY")),
//	    ai.WithDimensions(1536),
//	    ai.WithRequestsPerMinute(3000),
//	)
//	provider, err := openai.NewProvider(cfg)
package ai
