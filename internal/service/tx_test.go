package service

import "context"

type testTxRepos struct {
	chunks  ChunkRepositoryInterface
	sources SourceRepositoryInterface
}

func (t *testTxRepos) Chunks() ChunkRepositoryInterface {
	return t.chunks
}

func (t *testTxRepos) Sources() SourceRepositoryInterface {
	return t.sources
}

type testTxRunner struct {
	repos  TxRepositories
	called int
	err    error
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called++
	if t.err != nil {
		return t.err
	}
	return fn(t.repos)
}

func newTestTxRunner(chunks ChunkRepositoryInterface, sources SourceRepositoryInterface) *testTxRunner {
	return &testTxRunner{repos: &testTxRepos{chunks: chunks, sources: sources}}
}
