package model_test

import (
	"testing"

	"github.com/okian/duel/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestVote(t *testing.T) {
	convey.Convey("Given a generation vote", t, func() {
		v := model.Vote{SessionID: "s", Phase: model.PhaseGeneration, ChosenID: 3, RejectedID: 7}

		convey.Convey("Then it is not a neither vote and involves both sides", func() {
			convey.So(v.Neither(), convey.ShouldBeFalse)
			convey.So(v.Involves(3), convey.ShouldBeTrue)
			convey.So(v.Involves(7), convey.ShouldBeTrue)
			convey.So(v.Involves(0), convey.ShouldBeFalse)
		})

		convey.Convey("When repointing a merged candidate", func() {
			v.Repoint(7, 2)

			convey.Convey("Then only the matching reference changes", func() {
				convey.So(v.ChosenID, convey.ShouldEqual, 3)
				convey.So(v.RejectedID, convey.ShouldEqual, 2)
			})
		})
	})

	convey.Convey("Given a neither vote", t, func() {
		v := model.Vote{Phase: model.PhaseGeneration, RejectedID: 4}
		convey.So(v.Neither(), convey.ShouldBeTrue)
		convey.So(v.Involves(4), convey.ShouldBeTrue)
	})
}
