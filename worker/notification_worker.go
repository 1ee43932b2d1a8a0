package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adveri/models"
	"adveri/utils"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	inactivityWindow = 24 * time.Hour
	reportMinAge     = 30 * 24 * time.Hour
	jobLockTTL       = 6 * time.Hour
)

// JobResult counts what one scheduled run did.
type JobResult struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// JobLock makes sure only one instance runs a given job key.
type JobLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisJobLock takes the lock with SETNX so several API instances sharing
// one redis send each batch once.
type RedisJobLock struct {
	client *redis.Client
	prefix string
}

func NewRedisJobLock(client *redis.Client) *RedisJobLock {
	return &RedisJobLock{client: client, prefix: "adveri:jobs:"}
}

func (l *RedisJobLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, time.Now().Unix(), ttl).Result()
}

type localLock struct{}

func (localLock) Acquire(context.Context, string, time.Duration) (bool, error) { return true, nil }

type NotificationWorker struct {
	DB     *gorm.DB
	Mailer utils.Mailer
	Lock   JobLock
	Logger *logrus.Entry
	Hour   int

	now func() time.Time
}

// NewNotificationWorker wires the scheduler. A nil lock means this is the
// only instance.
func NewNotificationWorker(db *gorm.DB, mailer utils.Mailer, lock JobLock, logger *logrus.Logger, hour int) *NotificationWorker {
	if lock == nil {
		lock = localLock{}
	}
	return &NotificationWorker{
		DB:     db,
		Mailer: mailer,
		Lock:   lock,
		Logger: logger.WithField("component", "notification_worker"),
		Hour:   hour,
		now:    time.Now,
	}
}

// NextDailyRun is the first hour:00 strictly after now.
func NextDailyRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// NextMonthlyRun is the first day-1 hour:00 strictly after now.
func NextMonthlyRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), 1, hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month()+1, 1, hour, 0, 0, 0, now.Location())
	}
	return next
}

// Start runs the daily and monthly loops until ctx is cancelled.
func (nw *NotificationWorker) Start(ctx context.Context) {
	nw.Logger.WithField("hour", nw.Hour).Info("Notification worker started")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		nw.loop(ctx, NextDailyRun, func(at time.Time) {
			nw.runJob(ctx, "daily:"+at.Format("2006-01-02"), func() (JobResult, error) {
				return nw.SendDailyReminders(ctx, at)
			})
		})
	}()
	go func() {
		defer wg.Done()
		nw.loop(ctx, NextMonthlyRun, func(at time.Time) {
			nw.runJob(ctx, "monthly:"+at.Format("2006-01"), func() (JobResult, error) {
				return nw.SendMonthlyReports(ctx, at)
			})
		})
	}()
	wg.Wait()

	nw.Logger.Info("Notification worker shutting down...")
}

func (nw *NotificationWorker) loop(ctx context.Context, next func(time.Time, int) time.Time, run func(at time.Time)) {
	for {
		at := next(nw.now(), nw.Hour)
		timer := time.NewTimer(at.Sub(nw.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			run(at)
		}
	}
}

func (nw *NotificationWorker) runJob(ctx context.Context, key string, job func() (JobResult, error)) {
	log := nw.Logger.WithField("job", key)

	ok, err := nw.Lock.Acquire(ctx, key, jobLockTTL)
	if err != nil {
		utils.LogError("job_lock_failed", err, map[string]interface{}{"job": key})
		return
	}
	if !ok {
		log.Info("Job already taken by another instance")
		return
	}

	started := time.Now()
	result, err := job()
	if err != nil {
		utils.LogError("job_failed", err, map[string]interface{}{"job": key})
		return
	}
	log.WithFields(logrus.Fields{
		"total":    result.Total,
		"sent":     result.Sent,
		"failed":   result.Failed,
		"duration": time.Since(started).String(),
	}).Info("Job finished")
}

// SendDailyReminders mails every non-admin who has not signed in for a day.
// A failed send is logged and counted; the rest of the batch still goes out.
func (nw *NotificationWorker) SendDailyReminders(ctx context.Context, now time.Time) (JobResult, error) {
	var users []models.User
	if err := nw.DB.WithContext(ctx).
		Where("role <> ? AND last_login_at < ?", models.RoleAdmin, now.Add(-inactivityWindow)).
		Order("id").
		Find(&users).Error; err != nil {
		return JobResult{}, fmt.Errorf("failed to load inactive users: %w", err)
	}

	result := JobResult{Total: len(users)}
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		err := nw.Mailer.Send(ctx, utils.EmailData{
			Subject:  "We miss you on AdVeri",
			To:       []string{user.Email},
			Template: "daily_reminder",
			Data: utils.ReminderData{
				Username: user.Username,
				Role:     string(user.Role),
				Year:     now.Year(),
			},
		})
		if err != nil {
			result.Failed++
			utils.LogError("daily_reminder_failed", err, map[string]interface{}{"user_id": user.ID})
			continue
		}
		result.Sent++
	}
	return result, nil
}

// SendMonthlyReports mails every approved sponsor the spend on its
// campaigns that started more than 30 days ago.
func (nw *NotificationWorker) SendMonthlyReports(ctx context.Context, now time.Time) (JobResult, error) {
	db := nw.DB.WithContext(ctx)

	var sponsors []models.User
	if err := db.Preload("Sponsor").
		Where("role = ? AND approved = ?", models.RoleSponsor, true).
		Order("id").
		Find(&sponsors).Error; err != nil {
		return JobResult{}, fmt.Errorf("failed to load sponsors: %w", err)
	}

	month := now.AddDate(0, -1, 0).Format("January 2006")
	result := JobResult{Total: len(sponsors)}
	for _, sponsor := range sponsors {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		report, err := nw.buildReport(db, &sponsor, now)
		if err == nil {
			report.Month = month
			report.Year = now.Year()
			err = nw.Mailer.Send(ctx, utils.EmailData{
				Subject:  fmt.Sprintf("Your AdVeri report for %s", month),
				To:       []string{sponsor.Email},
				Template: "monthly_report",
				Data:     *report,
			})
		}
		if err != nil {
			result.Failed++
			utils.LogError("monthly_report_failed", err, map[string]interface{}{"user_id": sponsor.ID})
			continue
		}
		result.Sent++
	}
	return result, nil
}

func (nw *NotificationWorker) buildReport(db *gorm.DB, sponsor *models.User, now time.Time) (*utils.MonthlyReportData, error) {
	report := &utils.MonthlyReportData{Username: sponsor.Username}
	if sponsor.Sponsor != nil {
		report.EntityName = sponsor.Sponsor.EntityName
	}

	var campaigns []models.Campaign
	if err := db.Where("sponsor_id = ? AND start_date < ?", sponsor.ID, now.Add(-reportMinAge)).
		Order("start_date").
		Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to load campaigns: %w", err)
	}
	if len(campaigns) == 0 {
		return report, nil
	}

	ids := make([]uint, len(campaigns))
	for i, c := range campaigns {
		ids[i] = c.ID
	}
	var rows []struct {
		CampaignID uint
		Total      float64
	}
	if err := db.Model(&models.AdRequest{}).
		Select("campaign_id, COALESCE(SUM(payment_amount), 0) AS total").
		Where("campaign_id IN ?", ids).
		Group("campaign_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to sum expenditure: %w", err)
	}
	spent := make(map[uint]float64, len(rows))
	for _, r := range rows {
		spent[r.CampaignID] = r.Total
	}

	for _, c := range campaigns {
		report.Campaigns = append(report.Campaigns, utils.CampaignExpenditure{
			Name:        c.Name,
			StartDate:   c.StartDate,
			Budget:      c.Budget,
			Expenditure: spent[c.ID],
		})
		report.Total += spent[c.ID]
	}
	return report, nil
}
