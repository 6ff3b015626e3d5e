package app

import (
	"gorm.io/gorm"

	"github.com/campuschapel/attendance-backend/internal/data/repos"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

type Repos struct {
	Gathering repos.GatheringRepo
	Level     repos.LevelRepo
	Student   repos.StudentRepo
	Exeat     repos.ExeatRepo
	Upload    repos.UploadRepo
	Batch     repos.BatchRepo
	Issue     repos.IssueRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Gathering: repos.NewGatheringRepo(db, log),
		Level:     repos.NewLevelRepo(db, log),
		Student:   repos.NewStudentRepo(db, log),
		Exeat:     repos.NewExeatRepo(db, log),
		Upload:    repos.NewUploadRepo(db, log),
		Batch:     repos.NewBatchRepo(db, log),
		Issue:     repos.NewIssueRepo(db, log),
	}
}
