package pipeline

import (
	"fmt"

	"github.com/nao1215/crmpipeline/internal/notification"
)

// content は通知の種類と文面。
type content struct {
	notificationType notification.Type
	title            string
	message          string
}

// ownerContent は担当者宛ての通知の文面を組み立てる。
func ownerContent(deal DealDetail, previous Stage) content {
	return buildContent(deal, previous, "Your deal")
}

// actorContent は担当者以外の操作者宛ての通知の文面を組み立てる。
// 担当者を名前で示す。
func actorContent(deal DealDetail, previous Stage) content {
	owner := deal.Owner.Name
	if owner == "" {
		owner = deal.OwnerID
	}
	return buildContent(deal, previous, owner+"'s deal")
}

func buildContent(deal DealDetail, previous Stage, subject string) content {
	switch deal.Stage {
	case StageWon:
		return content{
			notificationType: notification.TypeDealWon,
			title:            "Deal won: " + deal.Title,
			message:          fmt.Sprintf("%s \"%s\" has been marked as won", subject, deal.Title),
		}
	case StageLost:
		return content{
			notificationType: notification.TypeDealLost,
			title:            "Deal lost: " + deal.Title,
			message:          fmt.Sprintf("%s \"%s\" has been marked as lost", subject, deal.Title),
		}
	default:
		return content{
			notificationType: notification.TypeDealUpdated,
			title:            fmt.Sprintf("Deal moved to %s: %s", deal.Stage.Label(), deal.Title),
			message: fmt.Sprintf("%s \"%s\" was moved from %s to %s",
				subject, deal.Title, previous.Label(), deal.Stage.Label()),
		}
	}
}
