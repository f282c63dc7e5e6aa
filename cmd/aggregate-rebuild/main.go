package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/models"
	"bitbucket.org/mmdatafocus/supplychain_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Recomputes the inventory and demand aggregates for a business from the carton
// rows. Use after manual data surgery or when a summary is suspected stale.
func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	articleID := flag.Int("article-id", 0, "Optional: article id (default: all articles with cartons)")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing articles and continue rebuilding others")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()

	var articleIds []int
	if *articleID > 0 {
		articleIds = []int{*articleID}
	} else {
		// Discover all articles with carton rows for the business.
		if err := db.Model(&models.Carton{}).
			Where("business_id = ?", *businessID).
			Distinct("article_id").
			Order("article_id").
			Pluck("article_id", &articleIds).Error; err != nil {
			fmt.Fprintf(os.Stderr, "discover articles: %v\n", err)
			os.Exit(1)
		}
	}

	rebuilt := 0
	for _, id := range articleIds {
		if err := rebuildArticle(db, *businessID, id); err != nil {
			logger.WithFields(logrus.Fields{
				"business_id": *businessID,
				"article_id":  id,
			}).Error("rebuild failed: " + err.Error())
			if *continueOnError {
				continue
			}
			os.Exit(1)
		}
		rebuilt++
	}
	fmt.Printf("rebuilt %d of %d article aggregate(s)\n", rebuilt, len(articleIds))
}

func rebuildArticle(db *gorm.DB, businessID string, articleID int) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := workflow.AcquireArticlePostingLock(tx, businessID, articleID); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := workflow.SyncInventory(tx, businessID, articleID); err != nil {
		workflow.ReleaseArticlePostingLock(tx, businessID, articleID)
		tx.Rollback()
		return err
	}
	workflow.ReleaseArticlePostingLock(tx, businessID, articleID)
	return tx.Commit().Error
}
