// Package mocks provides gomock implementations of the core ports.
//
// Regenerate after interface changes with:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockJobRepository(ctrl)
//	repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/mmk-media-jobs/internal/core JobRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=webhook_repository_mock.go github.com/target/mmk-media-jobs/internal/core WebhookRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=delivery_repository_mock.go github.com/target/mmk-media-jobs/internal/core DeliveryRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=broker_mock.go github.com/target/mmk-media-jobs/internal/core Broker
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=idempotency_store_mock.go github.com/target/mmk-media-jobs/internal/core IdempotencyStore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=progress_publisher_mock.go github.com/target/mmk-media-jobs/internal/core ProgressPublisher
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=collaborator_mock.go github.com/target/mmk-media-jobs/internal/core Collaborator
